package dwolla

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		code          string
		wantTitle     string
		wantCategory  string
		wantRetryable bool
	}{
		{
			name:          "insufficient funds is retryable",
			code:          "R01",
			wantTitle:     "Insufficient funds",
			wantCategory:  CategoryFunds,
			wantRetryable: true,
		},
		{
			name:          "account closed is permanent",
			code:          "R02",
			wantTitle:     "Account closed",
			wantCategory:  CategoryAccount,
			wantRetryable: false,
		},
		{
			name:          "lookup is case-insensitive",
			code:          "r01",
			wantTitle:     "Insufficient funds",
			wantCategory:  CategoryFunds,
			wantRetryable: true,
		},
		{
			name:          "surrounding whitespace is ignored",
			code:          "  R10 ",
			wantTitle:     "Customer advises not authorized",
			wantCategory:  CategoryAuthorization,
			wantRetryable: false,
		},
		{
			name:          "unknown code resolves to placeholder",
			code:          "Z99",
			wantTitle:     "Unknown return code",
			wantCategory:  CategoryOther,
			wantRetryable: false,
		},
		{
			name:          "empty code resolves to placeholder",
			code:          "",
			wantTitle:     "Unknown return code",
			wantCategory:  CategoryOther,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.code)
			assert.Equal(t, tt.wantTitle, info.Title)
			assert.Equal(t, tt.wantCategory, info.Category)
			assert.Equal(t, tt.wantRetryable, info.Retryable)
			assert.NotEmpty(t, info.UserAction, "every classification must carry guidance")
		})
	}
}

func TestClassify_UnknownKeepsNormalizedCode(t *testing.T) {
	info := Classify("z99")
	assert.Equal(t, "Z99", info.ReturnCode)
}

func TestReturnCodes_SortedAndComplete(t *testing.T) {
	codes := ReturnCodes()
	require.NotEmpty(t, codes)

	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1].ReturnCode, codes[i].ReturnCode, "listing must be sorted by code")
	}

	seen := make(map[string]bool, len(codes))
	for _, info := range codes {
		assert.False(t, seen[info.ReturnCode], "duplicate code %s", info.ReturnCode)
		seen[info.ReturnCode] = true
		assert.NotEmpty(t, info.Title)
		assert.NotEmpty(t, info.Category)
		assert.NotEmpty(t, info.UserAction)
	}
	assert.True(t, seen["R01"])
	assert.True(t, seen["R29"])
}
