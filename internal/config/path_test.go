package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("LEDGER_TEST_DIR", "/var/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty stays empty", in: "", want: ""},
		{name: "tilde prefix", in: "~/ledger/ledger.db", want: filepath.Join(home, "ledger", "ledger.db")},
		{name: "bare tilde", in: "~", want: home},
		{name: "env var", in: "$LEDGER_TEST_DIR/ledger.db", want: "/var/data/ledger.db"},
		{name: "absolute untouched", in: "/opt/ledger.db", want: "/opt/ledger.db"},
		{name: "tilde mid-path untouched", in: "/data/~backup/x", want: "/data/~backup/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
