package domain

import (
	"context"
)

// SnapshotProvider fetches a full book for a pair.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, pair Pair, aggregated bool, levels int) (Snapshot, error)
}

// ViewSink receives every published view state.
type ViewSink interface {
	Publish(v ViewState)
}

// Signer signs a venue-issued nonce for authentication.
type Signer interface {
	Sign(message string) (string, error)
	Account() string
}
