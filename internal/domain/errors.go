package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure (snapshot fetch, stream connect, auth).
type NetworkError struct {
	Op        string // Operation that failed (e.g., "snapshot", "connect", "auth")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// VenueError is an application-level failure reported by the venue in the
// error field of a response envelope.
type VenueError struct {
	Op  string
	Msg string
}

func (e *VenueError) Error() string {
	return e.Op + ": venue error: " + e.Msg
}

func (e *VenueError) IsRetriable() bool {
	return false
}

// SubscriptionRejectedError means the stream connected but the venue refused
// the subscription.
type SubscriptionRejectedError struct {
	Stream string
	Reason string
}

func (e *SubscriptionRejectedError) Error() string {
	return "subscription rejected [" + e.Stream + "]: " + e.Reason
}

func (e *SubscriptionRejectedError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStreamDisconnected marks a transport drop. The book is kept.
	ErrStreamDisconnected = errors.New("stream disconnected")

	// ErrMalformedMessage is returned for frames that are neither acks nor known pushes.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrStreamClosed is returned by stream operations after Close.
	ErrStreamClosed = errors.New("stream closed")

	// ErrNegativePrecision is returned when a decimals exponent is below zero.
	ErrNegativePrecision = errors.New("negative decimal precision")

	// ErrUnknownAsset is returned when the decimals map has no entry for an asset.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNotAuthenticated is returned when a call needs credentials that are not set.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
