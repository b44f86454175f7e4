package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
	"github.com/Veraticus/the-ledger-must-balance/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func rawTransfers(n int) []model.RawTransfer {
	transfers := make([]model.RawTransfer, n)
	for i := range transfers {
		transfers[i] = model.RawTransfer{
			ID:      fmt.Sprintf("transfer-%03d", i),
			Status:  model.StatusProcessed,
			Amount:  float64(10 + i),
			Created: time.Date(2026, 8, 1+i%28, 12, 0, 0, 0, time.UTC),
		}
	}
	return transfers
}

func TestCoordinator_SyncsAllTransfers(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(7), nil
	}
	store := newTestStore(t)

	coord := NewCoordinator(source, source, store, WithBatchSize(3))
	result, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 7, result.SyncedCount)
	assert.Zero(t, result.SkippedCount)
	assert.Zero(t, result.FailedCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(7), source.EnrichCalls.Load())

	count, err := store.CountTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestCoordinator_RerunIsIdempotent(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(6), nil
	}
	store := newTestStore(t)
	coord := NewCoordinator(source, source, store)

	first, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)
	second, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, first.SyncedCount, second.SyncedCount)

	count, err := store.CountTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, count, "re-running over the same range must not duplicate rows")

	stored, err := store.GetTransferByID(context.Background(), "transfer-000")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, stored.Status)
	assert.Equal(t, 10.0, stored.Amount)
}

func TestCoordinator_CountsSkippedAndFailed(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(5), nil
	}
	source.EnrichFn = func(_ context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error) {
		switch raw.ID {
		case "transfer-001":
			// Operator-initiated: excluded, not an error.
			return nil, nil
		case "transfer-003":
			return nil, errors.New("counterparty gone")
		default:
			return &model.EnrichedTransaction{
				ID:      raw.ID,
				Status:  raw.Status,
				Amount:  raw.Amount,
				Created: raw.Created,
			}, nil
		}
	}
	store := newTestStore(t)

	coord := NewCoordinator(source, source, store)
	result, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.SyncedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "transfer-003")

	count, err := store.CountTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count, "skipped and failed transfers must not be written")
}

func TestCoordinator_DryRunWritesNothing(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(4), nil
	}
	store := newTestStore(t)

	coord := NewCoordinator(source, source, store)
	result, err := coord.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 4, result.SyncedCount)

	count, err := store.CountTransfers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCoordinator_FirstPageFailureIsFatal(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return nil, errors.New("provider unavailable")
	}
	store := newTestStore(t)

	coord := NewCoordinator(source, source, store)
	result, err := coord.Run(context.Background(), Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch transfers")
	assert.Nil(t, result)
}

func TestCoordinator_UpsertFailureIsIsolated(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(3), nil
	}
	store := &flakyStorage{failID: "transfer-001"}

	coord := NewCoordinator(source, source, store, WithRetryOptions(service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}))
	result, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "transfer-001")
}

func TestCoordinator_ReportsProgress(t *testing.T) {
	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(5), nil
	}
	store := newTestStore(t)

	var reports []int
	coord := NewCoordinator(source, source, store,
		WithBatchSize(2),
		WithProgress(func(done int) { reports = append(reports, done) }))

	_, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	// Two full batches plus the final partial one.
	assert.Equal(t, []int{2, 4, 5}, reports)
}

func TestCoordinator_FanOutIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int64

	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(20), nil
	}
	source.EnrichFn = func(_ context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &model.EnrichedTransaction{ID: raw.ID, Status: raw.Status, Created: raw.Created}, nil
	}

	coord := NewCoordinator(source, source, newTestStore(t), WithBatchSize(20), WithFanOut(3))
	result, err := coord.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 20, result.SyncedCount)
	assert.LessOrEqual(t, peak.Load(), int64(3), "enrichment concurrency must honor the fan-out bound")
	assert.Equal(t, int64(20), source.EnrichCalls.Load(), "concurrent workers must not lose counter increments")
}

func TestCoordinator_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	source := dwolla.NewMockSource()
	source.ListTransfersFn = func(_ context.Context, _ service.ListOptions) ([]model.RawTransfer, error) {
		return rawTransfers(10), nil
	}
	source.EnrichFn = func(_ context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error) {
		cancel()
		return &model.EnrichedTransaction{ID: raw.ID, Status: raw.Status, Created: raw.Created}, nil
	}

	coord := NewCoordinator(source, source, newTestStore(t), WithBatchSize(2))
	result, err := coord.Run(ctx, Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result, "a cancelled run still reports partial progress")
}

// flakyStorage fails every upsert for one transfer id and delegates counting
// to an internal tally. Only the methods the coordinator touches do real work.
type flakyStorage struct {
	failID string
	writes atomic.Int64
}

func (f *flakyStorage) UpsertTransfer(_ context.Context, txn *model.EnrichedTransaction) error {
	if txn.ID == f.failID {
		return errors.New("disk full")
	}
	f.writes.Add(1)
	return nil
}

func (f *flakyStorage) UpsertTransfers(_ context.Context, txns []model.EnrichedTransaction) error {
	f.writes.Add(int64(len(txns)))
	return nil
}

func (f *flakyStorage) GetTransferByID(_ context.Context, _ string) (*model.EnrichedTransaction, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyStorage) GetTransfers(_ context.Context, _ service.TransferFilter) ([]model.EnrichedTransaction, error) {
	return nil, nil
}

func (f *flakyStorage) CountTransfers(_ context.Context) (int, error) {
	return int(f.writes.Load()), nil
}

func (f *flakyStorage) Migrate(_ context.Context) error { return nil }

func (f *flakyStorage) Close() error { return nil }

var _ service.Storage = (*flakyStorage)(nil)
