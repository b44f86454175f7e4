package dwolla

import (
	"strconv"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
)

// HAL+JSON wire types. The provider embeds related resources under
// "_embedded" and navigation under "_links".

type halLink struct {
	Href string `json:"href"`
}

type halLinks map[string]halLink

// href returns the link target for rel, or empty when absent.
func (l halLinks) href(rel string) string {
	return l[rel].Href
}

// has reports whether the link relation is present and non-empty.
func (l halLinks) has(rel string) bool {
	return l[rel].Href != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// moneyValue is the provider's {value, currency} amount representation.
// Values arrive as decimal strings.
type moneyValue struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (m moneyValue) amount() float64 {
	v, err := strconv.ParseFloat(m.Value, 64)
	if err != nil {
		return 0
	}
	return v
}

type feeResource struct {
	Amount moneyValue `json:"amount"`
}

type transferResource struct {
	Links           halLinks          `json:"_links"`
	Metadata        map[string]string `json:"metadata"`
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	CorrelationID   string            `json:"correlationId"`
	IndividualACHID string            `json:"individualAchId"`
	Created         time.Time         `json:"created"`
	Amount          moneyValue        `json:"amount"`
	Fees            []feeResource     `json:"fees"`
}

// toModel converts a wire transfer into the source-agnostic representation.
func (t transferResource) toModel() model.RawTransfer {
	raw := model.RawTransfer{
		ID:             t.ID,
		Status:         model.TransferStatus(t.Status),
		Amount:         t.Amount.amount(),
		Currency:       t.Amount.Currency,
		Created:        t.Created,
		SourceRef:      t.Links.href("source"),
		DestinationRef: t.Links.href("destination"),
		CorrelationID:  t.CorrelationID,
		Metadata:       t.Metadata,
	}
	for _, fee := range t.Fees {
		raw.Fees = append(raw.Fees, model.Fee{
			Amount:   fee.Amount.amount(),
			Currency: fee.Amount.Currency,
		})
	}
	if code, ok := t.Metadata["returnCode"]; ok {
		raw.ReturnCode = code
	}
	return raw
}

type transfersPage struct {
	Links    halLinks `json:"_links"`
	Embedded struct {
		Transfers []transferResource `json:"transfers"`
	} `json:"_embedded"`
	Total int `json:"total"`
}

type customerResource struct {
	Links        halLinks `json:"_links"`
	ID           string   `json:"id"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Email        string   `json:"email"`
	BusinessName string   `json:"businessName"`
	Status       string   `json:"status"`
	Type         string   `json:"type"`
}

type customersPage struct {
	Links    halLinks `json:"_links"`
	Embedded struct {
		Customers []customerResource `json:"customers"`
	} `json:"_embedded"`
	Total int `json:"total"`
}

type fundingSourceResource struct {
	Links    halLinks `json:"_links"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	BankName string   `json:"bankName"`
	Type     string   `json:"type"`
	Status   string   `json:"status"`
}

type fundingSourcesPage struct {
	Links    halLinks `json:"_links"`
	Embedded struct {
		FundingSources []fundingSourceResource `json:"funding-sources"`
	} `json:"_embedded"`
}

type eventResource struct {
	Links       halLinks  `json:"_links"`
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	ReturnCode  string    `json:"returnCode"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
}

type eventsPage struct {
	Links    halLinks `json:"_links"`
	Embedded struct {
		Events []eventResource `json:"events"`
	} `json:"_embedded"`
}

// errorResponse is the provider's error body shape.
type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Embedded struct {
		Errors []EmbeddedError `json:"errors"`
	} `json:"_embedded"`
}
