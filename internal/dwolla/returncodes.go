package dwolla

import (
	"sort"
	"strings"

	"github.com/Veraticus/the-ledger-must-balance/internal/model"
)

// Failure categories used for grouping in reports.
const (
	CategoryFunds         = "funds"
	CategoryAccount       = "account"
	CategoryAuthorization = "authorization"
	CategoryData          = "data"
	CategoryOther         = "other"
)

// unknownReturnCode is resolved for any code not in the table. Classification
// never fails.
var unknownReturnCode = model.FailureInfo{
	Title:      "Unknown return code",
	Category:   CategoryOther,
	Retryable:  false,
	UserAction: "Contact support with the transfer details.",
}

// returnCodes maps NACHA return codes to explanations and retry guidance.
// Keys are upper case; lookups are case-insensitive.
var returnCodes = map[string]model.FailureInfo{
	"R01": {
		ReturnCode: "R01",
		Title:      "Insufficient funds",
		Category:   CategoryFunds,
		Retryable:  true,
		UserAction: "Ask the customer to add funds, then retry the transfer.",
	},
	"R02": {
		ReturnCode: "R02",
		Title:      "Account closed",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "Ask the customer to link a different bank account.",
	},
	"R03": {
		ReturnCode: "R03",
		Title:      "No account / unable to locate account",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "Verify the account and routing numbers with the customer.",
	},
	"R04": {
		ReturnCode: "R04",
		Title:      "Invalid account number",
		Category:   CategoryData,
		Retryable:  false,
		UserAction: "Correct the account number and re-link the bank account.",
	},
	"R05": {
		ReturnCode: "R05",
		Title:      "Unauthorized debit to consumer account",
		Category:   CategoryAuthorization,
		Retryable:  false,
		UserAction: "Obtain new authorization from the customer before retrying.",
	},
	"R06": {
		ReturnCode: "R06",
		Title:      "Returned per ODFI request",
		Category:   CategoryOther,
		Retryable:  false,
		UserAction: "Contact support to learn why the originating bank recalled this.",
	},
	"R07": {
		ReturnCode: "R07",
		Title:      "Authorization revoked by customer",
		Category:   CategoryAuthorization,
		Retryable:  false,
		UserAction: "The customer revoked authorization. Obtain new authorization.",
	},
	"R08": {
		ReturnCode: "R08",
		Title:      "Payment stopped",
		Category:   CategoryAuthorization,
		Retryable:  false,
		UserAction: "The customer placed a stop payment. Contact them before retrying.",
	},
	"R09": {
		ReturnCode: "R09",
		Title:      "Uncollected funds",
		Category:   CategoryFunds,
		Retryable:  true,
		UserAction: "Funds are pending at the bank. Retry in a few business days.",
	},
	"R10": {
		ReturnCode: "R10",
		Title:      "Customer advises not authorized",
		Category:   CategoryAuthorization,
		Retryable:  false,
		UserAction: "The customer disputes this debit. Do not retry without new authorization.",
	},
	"R11": {
		ReturnCode: "R11",
		Title:      "Customer advises entry not in accordance with authorization",
		Category:   CategoryAuthorization,
		Retryable:  true,
		UserAction: "Correct the error the customer flagged, then reinitiate.",
	},
	"R12": {
		ReturnCode: "R12",
		Title:      "Account sold to another financial institution",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "Ask the customer to re-link their account at the new institution.",
	},
	"R13": {
		ReturnCode: "R13",
		Title:      "Invalid ACH routing number",
		Category:   CategoryData,
		Retryable:  false,
		UserAction: "Correct the routing number and re-link the bank account.",
	},
	"R14": {
		ReturnCode: "R14",
		Title:      "Representative payee deceased",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "Do not retry. Contact the account holder's estate.",
	},
	"R15": {
		ReturnCode: "R15",
		Title:      "Beneficiary or account holder deceased",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "Do not retry. Contact the account holder's estate.",
	},
	"R16": {
		ReturnCode: "R16",
		Title:      "Account frozen",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "The bank froze this account. Ask the customer to resolve it with their bank.",
	},
	"R17": {
		ReturnCode: "R17",
		Title:      "File record edit criteria",
		Category:   CategoryData,
		Retryable:  false,
		UserAction: "A field failed bank-side validation. Verify the account details.",
	},
	"R20": {
		ReturnCode: "R20",
		Title:      "Non-transaction account",
		Category:   CategoryAccount,
		Retryable:  false,
		UserAction: "This account does not allow ACH. Ask the customer for a checking account.",
	},
	"R22": {
		ReturnCode: "R22",
		Title:      "Invalid individual ID number",
		Category:   CategoryData,
		Retryable:  false,
		UserAction: "Correct the identification number and reinitiate.",
	},
	"R23": {
		ReturnCode: "R23",
		Title:      "Credit entry refused by receiver",
		Category:   CategoryOther,
		Retryable:  false,
		UserAction: "The receiver refused this credit. Contact them directly.",
	},
	"R24": {
		ReturnCode: "R24",
		Title:      "Duplicate entry",
		Category:   CategoryData,
		Retryable:  false,
		UserAction: "This transfer duplicates an earlier one. Do not retry.",
	},
	"R29": {
		ReturnCode: "R29",
		Title:      "Corporate customer advises not authorized",
		Category:   CategoryAuthorization,
		Retryable:  false,
		UserAction: "The business disputes this debit. Obtain new authorization.",
	},
}

// Classify resolves a return code to failure guidance. Lookup is
// case-insensitive; unknown or empty codes resolve to a defined placeholder
// and never an error.
func Classify(code string) model.FailureInfo {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if info, ok := returnCodes[normalized]; ok {
		return info
	}

	info := unknownReturnCode
	info.ReturnCode = normalized
	return info
}

// ReturnCodes lists every known return code entry, sorted by code. Used by
// the codes command.
func ReturnCodes() []model.FailureInfo {
	codes := make([]model.FailureInfo, 0, len(returnCodes))
	for _, info := range returnCodes {
		codes = append(codes, info)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].ReturnCode < codes[j].ReturnCode })
	return codes
}
