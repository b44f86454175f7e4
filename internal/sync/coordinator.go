// Package sync orchestrates one sync run: fetch, enrich, upsert, summarize.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-ledger-must-balance/internal/common"
	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
)

const (
	// defaultBatchSize is how many transfers are enriched per fan-out batch.
	defaultBatchSize = 50
	// defaultFanOut bounds concurrent enrichment lookups within a batch.
	defaultFanOut = 8
)

// Options bounds a single sync run. All fields are optional.
type Options struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	DryRun    bool
}

// Coordinator drives one sync run end to end. Pages are fetched strictly
// sequentially; enrichment within a batch fans out with bounded concurrency;
// upserts are idempotent on the provider's transfer id.
type Coordinator struct {
	source    service.TransferSource
	enricher  service.Enricher
	store     service.Storage
	logger    *slog.Logger
	progress  func(done int)
	retryOpts service.RetryOptions
	batchSize int
	fanOut    int
}

// CoordinatorOption customizes coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithBatchSize overrides the enrichment batch size.
func WithBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithFanOut overrides the bounded enrichment concurrency.
func WithFanOut(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.fanOut = n
		}
	}
}

// WithProgress registers a callback invoked with the running count of
// processed transfers, for progress display.
func WithProgress(fn func(done int)) CoordinatorOption {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// WithRetryOptions overrides the upsert retry schedule.
func WithRetryOptions(opts service.RetryOptions) CoordinatorOption {
	return func(c *Coordinator) {
		c.retryOpts = opts
	}
}

// NewCoordinator creates a sync coordinator.
func NewCoordinator(source service.TransferSource, enricher service.Enricher, store service.Storage, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		source:    source,
		enricher:  enricher,
		store:     store,
		logger:    common.ComponentLogger("sync"),
		batchSize: defaultBatchSize,
		fanOut:    defaultFanOut,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one sync. It returns a SyncResult unless the very first page
// fetch fails, in which case it returns an error with zero progress. A
// later page failure stops fetching but reports the partial result.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*model.SyncResult, error) {
	c.logger.Info("Starting sync run",
		"start_date", formatDate(opts.StartDate),
		"end_date", formatDate(opts.EndDate),
		"limit", opts.Limit,
		"dry_run", opts.DryRun)

	pager := c.source.Pager(service.ListOptions{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Limit:     opts.Limit,
	})

	result := &model.SyncResult{}
	processed := 0

	batch := make([]model.RawTransfer, 0, c.batchSize)
	for pager.Next(ctx) {
		batch = append(batch, pager.Transfer())
		if len(batch) >= c.batchSize {
			c.processBatch(ctx, batch, opts.DryRun, result)
			processed += len(batch)
			batch = batch[:0]
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	if err := pager.Err(); err != nil {
		if processed == 0 && len(batch) == 0 {
			// Nothing fetched at all: surface the failure directly.
			return nil, fmt.Errorf("failed to fetch transfers: %w", err)
		}
		// Pagination state is not recoverable mid-page; finish what we have.
		c.logger.Error("Page fetch failed mid-run, stopping early", "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("page fetch failed after %d transfers: %v", processed+len(batch), err))
	}

	if len(batch) > 0 {
		c.processBatch(ctx, batch, opts.DryRun, result)
	}

	c.logger.Info("Sync run complete",
		"synced", result.SyncedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount)

	return result, nil
}

// processBatch enriches a batch with bounded fan-out and upserts each result.
// Results are re-associated by input index, never by completion order.
func (c *Coordinator) processBatch(ctx context.Context, batch []model.RawTransfer, dryRun bool, result *model.SyncResult) {
	enriched := make([]*model.EnrichedTransaction, len(batch))
	enrichErrs := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanOut)
	for i, raw := range batch {
		i, raw := i, raw
		g.Go(func() error {
			enriched[i], enrichErrs[i] = c.enricher.Enrich(gctx, raw)
			return nil
		})
	}
	// Workers record failures per index instead of returning them.
	_ = g.Wait()

	for i, raw := range batch {
		if err := enrichErrs[i]; err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("enrich %s: %v", raw.ID, err))
			continue
		}
		if enriched[i] == nil {
			// Operator-initiated transfer; silently excluded.
			result.SkippedCount++
			continue
		}

		if dryRun {
			result.SyncedCount++
			continue
		}

		tx := enriched[i]
		err := common.WithRetry(ctx, func() error {
			return c.store.UpsertTransfer(ctx, tx)
		}, c.retryOpts)
		if err != nil {
			// One bad row never aborts the rest of the batch.
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", tx.ID, err))
			c.logger.Error("Failed to upsert transfer", "transfer_id", tx.ID, "error", err)
			continue
		}
		result.SyncedCount++
	}

	if c.progress != nil {
		c.progress(result.SyncedCount + result.SkippedCount + result.FailedCount)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
