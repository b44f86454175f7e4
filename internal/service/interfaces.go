// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
)

// TransferFilter defines filtering options for stored transaction queries.
type TransferFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    model.TransferStatus
	Limit     int
	Offset    int
}

// Storage defines the contract for our persistence layer. Transactions are
// keyed by the provider's transfer id, so repeated upserts are idempotent.
type Storage interface {
	UpsertTransfers(ctx context.Context, transactions []model.EnrichedTransaction) error
	UpsertTransfer(ctx context.Context, transaction *model.EnrichedTransaction) error
	GetTransferByID(ctx context.Context, id string) (*model.EnrichedTransaction, error)
	GetTransfers(ctx context.Context, filter TransferFilter) ([]model.EnrichedTransaction, error)
	CountTransfers(ctx context.Context) (int, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// TransferSource fetches raw transfers from the payment provider. Implemented
// by the dwolla client; mocked in tests.
type TransferSource interface {
	ListTransfers(ctx context.Context, opts ListOptions) ([]model.RawTransfer, error)
	Pager(opts ListOptions) TransferPager
}

// TransferPager iterates a paged transfer collection. Call Next until it
// returns false, then check Err.
type TransferPager interface {
	Next(ctx context.Context) bool
	Transfer() model.RawTransfer
	Err() error
}

// Enricher resolves a raw transfer into a classified transaction. A nil
// result with a nil error means the transfer should be excluded from sync.
type Enricher interface {
	Enrich(ctx context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error)
}

// ListOptions bounds a provider-side transfer listing.
type ListOptions struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
