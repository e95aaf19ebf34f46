package akira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderbook_go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// Credentials returned by the auth endpoint.
type Credentials struct {
	Token          string
	TradingAccount string
	SignerAccount  string
	ExpiresAt      time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token is past its exp claim.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Client is the venue REST client (Boundary Layer)
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.RWMutex
	creds Credentials
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec int) ClientOption {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a REST client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:  slog.Default().With("module", "akira_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSnapshot fetches the book for pair. A populated error field in the
// response yields a *domain.VenueError; transport failures a *domain.NetworkError.
func (c *Client) GetSnapshot(ctx context.Context, pair domain.Pair, aggregated bool, levels int) (domain.Snapshot, error) {
	q := url.Values{}
	q.Set("base", pair.Base)
	q.Set("quote", pair.Quote)
	q.Set("to_ecosystem_book", strconv.FormatBool(aggregated))
	if levels > 0 {
		q.Set("levels", strconv.Itoa(levels))
	}

	var res snapshotResult
	if err := c.doRequest(ctx, "snapshot", http.MethodGet, "/book/snapshot", q, nil, &res); err != nil {
		return domain.Snapshot{}, err
	}

	c.logger.Debug("Snapshot fetched",
		slog.String("pair", pair.String()),
		slog.Int("bids", len(res.Levels.Bids)),
		slog.Int("asks", len(res.Levels.Asks)),
	)
	return res.Levels, nil
}

// Auth runs the sign-in handshake: fetch the message to sign, sign it, and
// exchange the signature for a JWT. The credentials are stored on success.
func (c *Client) Auth(ctx context.Context, signer domain.Signer, tradingAccount string) (Credentials, error) {
	q := url.Values{}
	q.Set("user", tradingAccount)

	var msg json.RawMessage
	if err := c.doRequest(ctx, "auth", http.MethodGet, "/sign/request_sign_data", q, nil, &msg); err != nil {
		return Credentials{}, err
	}
	nonce := rawText(msg)

	sig, err := signer.Sign(nonce)
	if err != nil {
		return Credentials{}, domain.NewFatalNetworkError("auth", fmt.Errorf("sign: %w", err))
	}

	req := authRequest{
		Msg:            nonce,
		Signature:      sig,
		SignerAccount:  signer.Account(),
		TradingAccount: tradingAccount,
	}
	var token string
	if err := c.doRequest(ctx, "auth", http.MethodPost, "/sign/auth", nil, req, &token); err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		Token:          token,
		TradingAccount: tradingAccount,
		SignerAccount:  signer.Account(),
	}
	if exp, err := tokenExpiry(token); err != nil {
		c.logger.Warn("Auth token is not a readable JWT", slog.Any("error", err))
	} else {
		creds.ExpiresAt = exp
	}

	c.SetCredentials(creds)
	c.logger.Info("Authenticated", slog.String("account", tradingAccount), slog.Time("expires_at", creds.ExpiresAt))
	return creds, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the venue
// verifies its own tokens.
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// SetCredentials stores credentials used for later requests and the stream.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// Credentials returns the stored credentials.
func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Token returns the bearer token, empty before Auth.
func (c *Client) Token() string {
	return c.Credentials().Token
}

// doRequest handles rate limiting, auth header, and envelope decoding.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewNetworkError(op, err)
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return domain.NewFatalNetworkError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(op, err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil {
		if msg := rawText(env.Error); msg != "" {
			return &domain.VenueError{Op: op, Msg: msg}
		}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return domain.NewNetworkError(op, statusErr)
		}
		return domain.NewFatalNetworkError(op, statusErr)
	}

	if len(env.Result) == 0 {
		return domain.NewFatalNetworkError(op, fmt.Errorf("empty result: %s", truncate(raw, 128)))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return domain.NewFatalNetworkError(op, fmt.Errorf("decode result: %w", err))
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
