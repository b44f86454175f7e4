// Package model defines the core domain types shared across the application.
package model

import (
	"strings"
	"time"
)

// TransferStatus is the provider-reported lifecycle state of a transfer.
type TransferStatus string

// Transfer statuses as reported by the provider.
const (
	StatusPending    TransferStatus = "pending"
	StatusProcessing TransferStatus = "processing"
	StatusProcessed  TransferStatus = "processed"
	StatusFailed     TransferStatus = "failed"
	StatusCancelled  TransferStatus = "cancelled"
	StatusReturned   TransferStatus = "returned"
)

// IsTerminalFailure reports whether a transfer in this status needs
// failure classification.
func (s TransferStatus) IsTerminalFailure() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// TransferDirection indicates money movement relative to the house account.
type TransferDirection string

// Transfer directions.
const (
	// DirectionCredit means money flowing into the house account.
	DirectionCredit TransferDirection = "credit"
	// DirectionDebit means money flowing out of the house account.
	DirectionDebit TransferDirection = "debit"
)

// RawTransfer is the provider's wire representation of a money movement,
// normalized just enough to be source-agnostic.
type RawTransfer struct {
	Created        time.Time
	Metadata       map[string]string
	ID             string
	Status         TransferStatus
	Currency       string
	SourceRef      string
	DestinationRef string
	CorrelationID  string
	ReturnCode     string
	Fees           []Fee
	Amount         float64
}

// Fee is a per-leg charge attached to a transfer.
type Fee struct {
	Currency string
	Amount   float64
}

// TotalFees sums all fee legs on the transfer.
func (t *RawTransfer) TotalFees() float64 {
	var total float64
	for _, f := range t.Fees {
		total += f.Amount
	}
	return total
}

// Counterparty is the resolved identity on the customer side of a transfer.
type Counterparty struct {
	CustomerID   string
	Name         string
	Email        string
	BusinessName string
	FundingRef   string
	FundingName  string
}

// DisplayName returns the best available human label for the counterparty.
func (c Counterparty) DisplayName() string {
	for _, candidate := range []string{c.BusinessName, c.Name, c.Email, c.FundingName} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "Unknown"
}

// FailureInfo describes why a transfer failed and what can be done about it.
type FailureInfo struct {
	ReturnCode string
	Title      string
	Category   string
	UserAction string
	Retryable  bool
}

// EnrichedTransaction is a RawTransfer resolved into a fully classified,
// display-ready transaction.
type EnrichedTransaction struct {
	Created       time.Time
	SyncedAt      time.Time
	Failure       *FailureInfo
	ID            string
	Status        TransferStatus
	Currency      string
	CorrelationID string
	Direction     TransferDirection
	Counterparty  Counterparty
	Amount        float64
	NetAmount     float64
}

// SyncResult summarizes a single sync run. It is reported, never persisted.
type SyncResult struct {
	Errors       []string
	SyncedCount  int
	FailedCount  int
	SkippedCount int
}
