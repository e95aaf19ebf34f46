package domain

import "time"

// SessionStatus is the lifecycle state of a subscription session.
type SessionStatus int

const (
	StatusIdle SessionStatus = iota
	StatusLoading
	StatusActive
	StatusDisconnected
	StatusError
)

func (s SessionStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusActive:
		return "active"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ViewState is what the presentation layer renders.
type ViewState struct {
	Pair      Pair           `json:"pair"`
	Status    SessionStatus  `json:"status"`
	Error     string         `json:"error,omitempty"`
	Book      OrderBookState `json:"book"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Connected reports whether the stream is currently delivering.
func (v ViewState) Connected() bool {
	return v.Status == StatusActive
}
