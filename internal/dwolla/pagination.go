package dwolla

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
)

const (
	// defaultPageSize is the provider's maximum page size.
	defaultPageSize = 200

	// Cooperative throttle: pause briefly every few pages so a long
	// backfill does not rate-limit itself.
	throttleEveryPages = 5
	throttlePause      = 250 * time.Millisecond
)

// TransferPager walks a paged transfer collection one request at a time, in
// the manner of bufio.Scanner: call Next until it returns false, then check
// Err.
type TransferPager struct {
	client   *Client
	err      error
	path     string
	params   url.Values
	buf      []model.RawTransfer
	current  model.RawTransfer
	pageSize int
	cap      int // 0 means unbounded
	offset   int
	yielded  int
	pages    int
	done     bool
}

// TransferPager returns a pager over the house account's transfer collection,
// newest first, bounded by opts.
func (c *Client) TransferPager(opts service.ListOptions) *TransferPager {
	params := url.Values{}
	if opts.StartDate != nil {
		params.Set("startDate", opts.StartDate.Format("2006-01-02"))
	}
	if opts.EndDate != nil {
		params.Set("endDate", opts.EndDate.Format("2006-01-02"))
	}

	pageSize := defaultPageSize
	if opts.Limit > 0 && opts.Limit < pageSize {
		pageSize = opts.Limit
	}

	return &TransferPager{
		client:   c,
		path:     fmt.Sprintf("/accounts/%s/transfers", c.cfg.MasterAccountID),
		params:   params,
		pageSize: pageSize,
		cap:      opts.Limit,
	}
}

// Next advances to the next transfer, fetching the next page when the current
// one is exhausted. It returns false at the end of the collection, at the
// cap, or on error.
func (t *TransferPager) Next(ctx context.Context) bool {
	if t.err != nil {
		return false
	}
	if t.cap > 0 && t.yielded >= t.cap {
		return false
	}

	if len(t.buf) == 0 {
		if t.done || !t.fetchPage(ctx) {
			return false
		}
	}

	t.current = t.buf[0]
	t.buf = t.buf[1:]
	t.yielded++
	return true
}

// Transfer returns the transfer most recently advanced to by Next.
func (t *TransferPager) Transfer() model.RawTransfer {
	return t.current
}

// Err returns the first error encountered while paging, if any.
func (t *TransferPager) Err() error {
	return t.err
}

// Pages returns how many pages have been fetched so far.
func (t *TransferPager) Pages() int {
	return t.pages
}

// fetchPage loads the page at the current offset into the buffer. Pages are
// requested strictly sequentially so offsets stay correct.
func (t *TransferPager) fetchPage(ctx context.Context) bool {
	if t.pages > 0 && t.pages%throttleEveryPages == 0 {
		if err := sleepCtx(ctx, throttlePause); err != nil {
			t.err = err
			return false
		}
	}

	params := url.Values{}
	for k, vs := range t.params {
		params[k] = vs
	}
	params.Set("limit", strconv.Itoa(t.pageSize))
	params.Set("offset", strconv.Itoa(t.offset))

	var page transfersPage
	if err := t.client.getJSON(ctx, t.path+"?"+params.Encode(), &page); err != nil {
		t.err = fmt.Errorf("failed to fetch transfers page at offset %d: %w", t.offset, err)
		return false
	}
	t.pages++

	items := page.Embedded.Transfers
	if len(items) == 0 {
		t.done = true
		return false
	}

	// No next link means this is the last page.
	if !page.Links.has("next") {
		t.done = true
	}
	t.offset += t.pageSize

	// Truncate the final page to exactly fill the cap.
	if t.cap > 0 && t.yielded+len(items) > t.cap {
		items = items[:t.cap-t.yielded]
		t.done = true
	}

	t.buf = t.buf[:0]
	for _, item := range items {
		t.buf = append(t.buf, item.toModel())
	}
	return true
}

// ListTransfers drains a pager into a slice, implementing
// service.TransferSource for callers that want the whole range at once.
func (c *Client) ListTransfers(ctx context.Context, opts service.ListOptions) ([]model.RawTransfer, error) {
	pager := c.TransferPager(opts)

	var transfers []model.RawTransfer
	for pager.Next(ctx) {
		transfers = append(transfers, pager.Transfer())
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched all transfers", "count", len(transfers), "pages", pager.Pages())
	return transfers, nil
}

// Pager exposes the iterator form of the transfer listing.
func (c *Client) Pager(opts service.ListOptions) service.TransferPager {
	return c.TransferPager(opts)
}

// Ensure Client implements the TransferSource interface.
var _ service.TransferSource = (*Client)(nil)
