package dwolla

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/common"
	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
)

// Enricher resolves raw transfers into fully classified transactions. Only
// customer-initiated money movement survives enrichment: transfers whose
// source leg is the house account are excluded.
type Enricher struct {
	client         *Client
	logger         *slog.Logger
	houseAccountID string
	now            func() time.Time
}

// NewEnricher creates an enrichment pipeline backed by the given client.
func NewEnricher(client *Client) *Enricher {
	return &Enricher{
		client:         client,
		houseAccountID: client.cfg.MasterAccountID,
		logger:         common.ComponentLogger("dwolla.enrich"),
		now:            time.Now,
	}
}

// Enrich resolves counterparties, direction, net amount and failure
// classification for one raw transfer. A nil result with a nil error means
// the transfer is operator-initiated and should be excluded from sync.
//
// Resolution failures degrade rather than abort: optional lookups fall back
// to minimal values, and even a failed initial counterparty resolution yields
// a minimal record instead of an error.
func (e *Enricher) Enrich(ctx context.Context, raw model.RawTransfer) (*model.EnrichedTransaction, error) {
	// The house account id appears as a substring of the leg reference; the
	// provider does not expose a stricter identity contract.
	if e.isHouseRef(raw.SourceRef) {
		e.logger.Debug("Skipping operator-initiated transfer", "transfer_id", raw.ID)
		return nil, nil
	}

	tx := &model.EnrichedTransaction{
		ID:            raw.ID,
		Status:        raw.Status,
		Amount:        raw.Amount,
		Currency:      raw.Currency,
		Created:       raw.Created,
		CorrelationID: raw.CorrelationID,
		SyncedAt:      e.now(),
	}

	counterparty, err := e.resolveCounterparty(ctx, raw)
	if err != nil {
		// The one fatal condition for a single transfer. Degrade to a
		// minimal record so the batch keeps going.
		e.logger.Warn("Counterparty resolution failed, storing minimal record",
			"transfer_id", raw.ID,
			"error", err)
		return tx, nil
	}

	tx.Counterparty = counterparty
	tx.Direction = e.direction(raw)
	tx.NetAmount = raw.Amount - raw.TotalFees()

	if raw.Status.IsTerminalFailure() {
		tx.Failure = e.classifyFailure(ctx, raw)
	}

	return tx, nil
}

// direction reports money movement relative to the house account. Kept total
// even though operator-initiated (debit-at-source) transfers are excluded
// earlier, so the function stays reusable.
func (e *Enricher) direction(raw model.RawTransfer) model.TransferDirection {
	if e.isHouseRef(raw.DestinationRef) {
		return model.DirectionCredit
	}
	return model.DirectionDebit
}

func (e *Enricher) isHouseRef(ref string) bool {
	return e.houseAccountID != "" && strings.Contains(ref, e.houseAccountID)
}

// resolveCounterparty identifies the customer side of the transfer. The
// customer leg is whichever leg is not the house account; for excluded
// transfers that is always the source. The house leg itself is never
// fetched: the enriched record carries no house-side detail, so the
// lookup would be a wasted round trip.
func (e *Enricher) resolveCounterparty(ctx context.Context, raw model.RawTransfer) (model.Counterparty, error) {
	customerRef := raw.SourceRef
	if e.isHouseRef(customerRef) {
		customerRef = raw.DestinationRef
	}

	if strings.Contains(customerRef, "/customers/") {
		return e.resolveFromCustomerRef(ctx, customerRef)
	}
	return e.resolveFromFundingRef(ctx, customerRef)
}

// resolveFromCustomerRef handles legs that reference a customer directly.
// The profile lookup is required; the funding-source alias is best effort.
func (e *Enricher) resolveFromCustomerRef(ctx context.Context, customerRef string) (model.Counterparty, error) {
	cust, err := e.client.customer(ctx, customerRef)
	if err != nil {
		return model.Counterparty{}, err
	}

	cp := counterpartyFromCustomer(cust)

	sources, err := e.client.customerFundingSources(ctx, cust.ID)
	if err != nil {
		// Fail soft: the bank alias is display detail only.
		e.logger.Debug("Funding source lookup failed, continuing without alias",
			"customer_id", cust.ID,
			"error", err)
		return cp, nil
	}
	if len(sources) > 0 {
		cp.FundingRef = sources[0].Links.href("self")
		cp.FundingName = fundingSourceName(&sources[0])
	}

	return cp, nil
}

// resolveFromFundingRef handles legs that reference a funding source. The
// funding-source lookup is required; the customer back-reference is best
// effort.
func (e *Enricher) resolveFromFundingRef(ctx context.Context, fundingRef string) (model.Counterparty, error) {
	fs, err := e.client.fundingSource(ctx, fundingRef)
	if err != nil {
		return model.Counterparty{}, err
	}

	cp := model.Counterparty{
		FundingRef:  fundingRef,
		FundingName: fundingSourceName(fs),
	}

	if custRef := fs.Links.href("customer"); custRef != "" {
		cust, err := e.client.customer(ctx, custRef)
		if err != nil {
			e.logger.Debug("Customer back-reference lookup failed, continuing",
				"funding_ref", fundingRef,
				"error", err)
			return cp, nil
		}
		profile := counterpartyFromCustomer(cust)
		profile.FundingRef = cp.FundingRef
		profile.FundingName = cp.FundingName
		return profile, nil
	}

	return cp, nil
}

// classifyFailure attaches return-code guidance to a failed, cancelled or
// returned transfer. Never fails: missing codes probe the events
// sub-resource best-effort and unknown codes classify to a placeholder.
func (e *Enricher) classifyFailure(ctx context.Context, raw model.RawTransfer) *model.FailureInfo {
	code := raw.ReturnCode
	if code == "" {
		code = e.lookupReturnCode(ctx, raw.ID)
	}

	info := Classify(code)
	return &info
}

// returnCodeExtractors probe an event for a return code, in priority order.
// Kept as data so new provider quirks are one entry, not another branch.
var returnCodeExtractors = []func(eventResource) string{
	func(ev eventResource) string { return ev.ReturnCode },
	func(ev eventResource) string { return scanForReturnCode(ev.Description) },
	func(ev eventResource) string { return scanForReturnCode(ev.Topic) },
}

// lookupReturnCode probes the transfer's events for a return code when the
// top-level record omits it. Best effort: any failure yields no code.
func (e *Enricher) lookupReturnCode(ctx context.Context, transferID string) string {
	events, err := e.client.transferEvents(ctx, transferID)
	if err != nil {
		e.logger.Debug("Event lookup failed, no return code available",
			"transfer_id", transferID,
			"error", err)
		return ""
	}

	for _, ev := range events {
		for _, extract := range returnCodeExtractors {
			if code := extract(ev); code != "" {
				return code
			}
		}
	}
	return ""
}

// scanForReturnCode finds a NACHA-shaped token ("R" plus two digits) in free
// text.
func scanForReturnCode(text string) string {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == ':' || r == '.' || r == ','
	}) {
		if len(field) == 3 && (field[0] == 'R' || field[0] == 'r') &&
			field[1] >= '0' && field[1] <= '9' && field[2] >= '0' && field[2] <= '9' {
			return strings.ToUpper(field)
		}
	}
	return ""
}

// counterpartyFromCustomer maps a customer profile onto the counterparty.
func counterpartyFromCustomer(cust *customerResource) model.Counterparty {
	name := strings.TrimSpace(cust.FirstName + " " + cust.LastName)
	return model.Counterparty{
		CustomerID:   cust.ID,
		Name:         name,
		Email:        cust.Email,
		BusinessName: cust.BusinessName,
	}
}

// Ensure Enricher implements the service contract.
var _ service.Enricher = (*Enricher)(nil)

// fundingSourceName picks the best available label for a funding source.
func fundingSourceName(fs *fundingSourceResource) string {
	for _, candidate := range []string{fs.Name, fs.BankName, fs.ID} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}
