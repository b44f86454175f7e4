package dwolla

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
)

// Customer is a provider customer record, exposed for CLI listings.
type Customer struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	BusinessName string
	Status       string
	Type         string
}

// customer fetches a customer by URL or id.
func (c *Client) customer(ctx context.Context, ref string) (*customerResource, error) {
	if !strings.Contains(ref, "/customers/") {
		ref = "/customers/" + ref
	}
	var cust customerResource
	if err := c.getJSON(ctx, ref, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

// fundingSource fetches a funding source by URL or id.
func (c *Client) fundingSource(ctx context.Context, ref string) (*fundingSourceResource, error) {
	if !strings.Contains(ref, "/funding-sources/") {
		ref = "/funding-sources/" + ref
	}
	var fs fundingSourceResource
	if err := c.getJSON(ctx, ref, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

// customerFundingSources lists a customer's funding sources. A 404 is
// tolerated and yields an empty list.
func (c *Client) customerFundingSources(ctx context.Context, customerID string) ([]fundingSourceResource, error) {
	var page fundingSourcesPage
	err := c.getJSON(ctx, fmt.Sprintf("/customers/%s/funding-sources", customerID), &page)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return page.Embedded.FundingSources, nil
}

// transferEvents lists a transfer's event sub-resources. A 404 is tolerated
// and yields an empty list.
func (c *Client) transferEvents(ctx context.Context, transferID string) ([]eventResource, error) {
	var page eventsPage
	err := c.getJSON(ctx, fmt.Sprintf("/transfers/%s/events", transferID), &page)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return page.Embedded.Events, nil
}

// Transfer fetches a single transfer by id.
func (c *Client) Transfer(ctx context.Context, id string) (*model.RawTransfer, error) {
	var res transferResource
	if err := c.getJSON(ctx, "/transfers/"+id, &res); err != nil {
		return nil, err
	}
	raw := res.toModel()
	return &raw, nil
}

// ListCustomers pages through the customer collection, up to limit records
// (0 means all).
func (c *Client) ListCustomers(ctx context.Context, limit int) ([]Customer, error) {
	pageSize := defaultPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	var customers []Customer
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page customersPage
		if err := c.getJSON(ctx, "/customers?"+params.Encode(), &page); err != nil {
			if IsNotFound(err) {
				return customers, nil
			}
			return nil, fmt.Errorf("failed to list customers at offset %d: %w", offset, err)
		}

		if len(page.Embedded.Customers) == 0 {
			return customers, nil
		}

		for _, cust := range page.Embedded.Customers {
			customers = append(customers, Customer{
				ID:           cust.ID,
				FirstName:    cust.FirstName,
				LastName:     cust.LastName,
				Email:        cust.Email,
				BusinessName: cust.BusinessName,
				Status:       cust.Status,
				Type:         cust.Type,
			})
			if limit > 0 && len(customers) >= limit {
				return customers, nil
			}
		}

		if !page.Links.has("next") {
			return customers, nil
		}
		offset += pageSize
	}
}
