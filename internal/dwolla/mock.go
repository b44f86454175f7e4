package dwolla

import (
	"context"
	"sync/atomic"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
)

// MockSource is a mock implementation of service.TransferSource and
// service.Enricher for testing the sync coordinator.
type MockSource struct {
	// Functions that can be set by tests to control behavior
	ListTransfersFn func(ctx context.Context, opts service.ListOptions) ([]model.RawTransfer, error)
	EnrichFn        func(ctx context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error)

	// Call tracking. Enrich runs on concurrent workers, so counters are
	// atomic.
	ListTransfersCalls atomic.Int64
	EnrichCalls        atomic.Int64
}

// NewMockSource creates a new mock transfer source.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// ListTransfers implements service.TransferSource.
func (m *MockSource) ListTransfers(ctx context.Context, opts service.ListOptions) ([]model.RawTransfer, error) {
	m.ListTransfersCalls.Add(1)

	if m.ListTransfersFn != nil {
		return m.ListTransfersFn(ctx, opts)
	}
	return []model.RawTransfer{}, nil
}

// Pager implements service.TransferSource over the ListTransfers result.
func (m *MockSource) Pager(opts service.ListOptions) service.TransferPager {
	return &mockPager{source: m, opts: opts}
}

// Enrich implements service.Enricher. The default passes the raw transfer
// through unchanged.
func (m *MockSource) Enrich(ctx context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error) {
	m.EnrichCalls.Add(1)

	if m.EnrichFn != nil {
		return m.EnrichFn(ctx, raw)
	}
	return &model.EnrichedTransaction{
		ID:       raw.ID,
		Status:   raw.Status,
		Amount:   raw.Amount,
		Currency: raw.Currency,
		Created:  raw.Created,
	}, nil
}

// mockPager drains the mock's ListTransfers result one item at a time.
type mockPager struct {
	source  *MockSource
	err     error
	buf     []model.RawTransfer
	current model.RawTransfer
	opts    service.ListOptions
	fetched bool
}

func (p *mockPager) Next(ctx context.Context) bool {
	if !p.fetched {
		p.fetched = true
		p.buf, p.err = p.source.ListTransfers(ctx, p.opts)
	}
	if p.err != nil || len(p.buf) == 0 {
		return false
	}
	p.current = p.buf[0]
	p.buf = p.buf[1:]
	return true
}

func (p *mockPager) Transfer() model.RawTransfer {
	return p.current
}

func (p *mockPager) Err() error {
	return p.err
}

// Ensure the mock satisfies the service contracts.
var (
	_ service.TransferSource = (*MockSource)(nil)
	_ service.Enricher       = (*MockSource)(nil)
)
