package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"orderbook_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config keys persisted in the key/value table.
const (
	KeyReverse = "ui.reverse"
)

// Storage persists the asset decimals registry and UI preferences.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
// An empty path resolves to the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		resolved, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		dbPath = resolved
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Asset{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "OrderBook", "data", "orderbook.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates or updates an asset's decimals entry
func (s *Storage) UpsertAsset(asset *domain.Asset) error {
	if asset.Decimals < 0 {
		return fmt.Errorf("%w: %s=%d", domain.ErrNegativePrecision, asset.Symbol, asset.Decimals)
	}
	return s.db.Save(asset).Error
}

// GetAsset retrieves an asset by symbol
func (s *Storage) GetAsset(symbol string) (*domain.Asset, error) {
	var asset domain.Asset
	err := s.db.First(&asset, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &asset, err
}

// GetAllAssets retrieves all assets
func (s *Storage) GetAllAssets() ([]domain.Asset, error) {
	var assets []domain.Asset
	err := s.db.Order("symbol").Find(&assets).Error
	return assets, err
}

// DecimalsMap returns symbol -> decimals for every registered asset.
func (s *Storage) DecimalsMap() (map[string]int, error) {
	assets, err := s.GetAllAssets()
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(assets))
	for _, a := range assets {
		result[a.Symbol] = a.Decimals
	}
	return result, nil
}

// DeleteAsset deletes an asset from the database
func (s *Storage) DeleteAsset(symbol string) error {
	return s.db.Where("symbol = ?", symbol).Delete(&domain.Asset{}).Error
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}

// LoadBool reads a boolean preference, returning def when unset or unparsable.
func (s *Storage) LoadBool(key string, def bool) bool {
	var cfg domain.AppConfig
	if err := s.db.Where(&domain.AppConfig{Key: key}).First(&cfg).Error; err != nil {
		return def
	}
	v, err := strconv.ParseBool(cfg.Value)
	if err != nil {
		return def
	}
	return v
}

// SaveBool stores a boolean preference.
func (s *Storage) SaveBool(key string, v bool) error {
	return s.SaveConfig(key, strconv.FormatBool(v))
}
