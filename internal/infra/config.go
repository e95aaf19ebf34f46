package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"orderbook_go/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read at startup. The four API values are required.
const (
	EnvHTTPURL          = "ORDERBOOK_API_HTTP_URL"
	EnvWSURL            = "ORDERBOOK_API_WS_URL"
	EnvSignerPrivateKey = "ORDERBOOK_SIGNER_PRIVATE_KEY"
	EnvTradingAddress   = "ORDERBOOK_TRADING_ADDRESS"
	EnvLogLevel         = "ORDERBOOK_LOG_LEVEL"
	EnvDBPath           = "ORDERBOOK_DB_PATH"
	EnvServerAddr       = "ORDERBOOK_SERVER_ADDR"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// 기본값 → YAML → .env → 환경 변수 순서로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		HTTPURL          string `yaml:"http_url"`
		WSURL            string `yaml:"ws_url"`
		SignerPrivateKey string `yaml:"signer_private_key"`
		TradingAddress   string `yaml:"trading_address"`
		RateLimitPerSec  int    `yaml:"rate_limit_per_sec"`
		TimeoutSec       int    `yaml:"timeout_sec"`
	} `yaml:"api"`

	Market struct {
		Base       string         `yaml:"base"`
		Quote      string         `yaml:"quote"`
		FeeToken   string         `yaml:"fee_token"`
		Decimals   map[string]int `yaml:"decimals"`
		Levels     int            `yaml:"levels"`
		Aggregated bool           `yaml:"aggregated"`
	} `yaml:"market"`

	UI struct {
		Dashboard        bool `yaml:"dashboard"`
		HighlightMS      int  `yaml:"highlight_ms"`
		RedrawMS         int  `yaml:"redraw_ms"`
		MobileBreakpoint int  `yaml:"mobile_breakpoint"`
		Reverse          bool `yaml:"reverse"`
	} `yaml:"ui"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the built-in settings for the STRK/USDC book.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "orderbook"
	cfg.App.Version = "0.1.0"
	cfg.API.RateLimitPerSec = 5
	cfg.API.TimeoutSec = 10
	cfg.Market.Base = "STRK"
	cfg.Market.Quote = "USDC"
	cfg.Market.FeeToken = "STRK"
	cfg.Market.Decimals = map[string]int{"STRK": 18, "USDC": 6}
	cfg.Market.Levels = 10
	cfg.UI.Dashboard = true
	cfg.UI.HighlightMS = 500
	cfg.UI.RedrawMS = 250
	cfg.UI.MobileBreakpoint = 100
	cfg.Server.Addr = "localhost:8080"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 파일이 없으면 기본값을 사용합니다.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only setup
	default:
		return nil, err
	}

	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.API.HTTPURL == "" {
		return &domain.ConfigError{Field: EnvHTTPURL, Err: errors.New("required")}
	}
	if !strings.HasPrefix(c.API.HTTPURL, "http://") && !strings.HasPrefix(c.API.HTTPURL, "https://") {
		return &domain.ConfigError{Field: EnvHTTPURL, Err: fmt.Errorf("invalid scheme: %s", c.API.HTTPURL)}
	}
	if c.API.WSURL == "" {
		return &domain.ConfigError{Field: EnvWSURL, Err: errors.New("required")}
	}
	if !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
		return &domain.ConfigError{Field: EnvWSURL, Err: fmt.Errorf("invalid scheme: %s", c.API.WSURL)}
	}
	if c.API.SignerPrivateKey == "" {
		return &domain.ConfigError{Field: EnvSignerPrivateKey, Err: errors.New("required")}
	}
	if c.API.TradingAddress == "" {
		return &domain.ConfigError{Field: EnvTradingAddress, Err: errors.New("required")}
	}

	// Market
	for _, asset := range []string{c.Market.Base, c.Market.Quote} {
		d, ok := c.Market.Decimals[asset]
		if !ok {
			return &domain.ConfigError{Field: "market.decimals", Err: fmt.Errorf("%w: %s", domain.ErrUnknownAsset, asset)}
		}
		if d < 0 {
			return &domain.ConfigError{Field: "market.decimals", Err: fmt.Errorf("%w: %s", domain.ErrNegativePrecision, asset)}
		}
	}
	if c.Market.Levels <= 0 {
		return &domain.ConfigError{Field: "market.levels", Err: errors.New("must be positive")}
	}

	// UI
	if c.UI.HighlightMS <= 0 || c.UI.RedrawMS <= 0 {
		return &domain.ConfigError{Field: "ui", Err: errors.New("intervals must be positive")}
	}

	return nil
}

// MarketConfig builds the session market description.
func (c *Config) MarketConfig() domain.MarketConfig {
	decimals := make(map[string]int, len(c.Market.Decimals))
	for k, v := range c.Market.Decimals {
		decimals[k] = v
	}
	return domain.MarketConfig{
		Pair:            domain.Pair{Base: c.Market.Base, Quote: c.Market.Quote},
		DecimalsByAsset: decimals,
		FeeToken:        c.Market.FeeToken,
		Levels:          c.Market.Levels,
		Aggregated:      c.Market.Aggregated,
	}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(EnvHTTPURL); v != "" {
		cfg.API.HTTPURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		cfg.API.WSURL = v
	}
	if v := os.Getenv(EnvSignerPrivateKey); v != "" {
		cfg.API.SignerPrivateKey = v
	}
	if v := os.Getenv(EnvTradingAddress); v != "" {
		cfg.API.TradingAddress = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ORDERBOOK_LEVELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Market.Levels = n
		}
	}
}
