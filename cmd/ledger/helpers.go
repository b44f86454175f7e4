package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/config"
	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	"github.com/Veraticus/the-ledger-must-balance/internal/storage"
	"github.com/spf13/viper"
)

// providerConfig builds the Dwolla configuration from viper.
func providerConfig() dwolla.Config {
	cfg := dwolla.Config{
		ClientID:        viper.GetString("dwolla.client_id"),
		Secret:          viper.GetString("dwolla.secret"),
		Environment:     viper.GetString("dwolla.environment"),
		MasterAccountID: viper.GetString("dwolla.master_account_id"),
	}
	if cfg.Environment == "" {
		cfg.Environment = "sandbox"
	}
	return cfg
}

// openStorage opens (and migrates) the local database.
func openStorage(dbPath string) (*storage.SQLiteStorage, error) {
	if dbPath == "" {
		dbPath = config.ExpandPath(viper.GetString("database.path"))
	}
	if dbPath == "" {
		dbPath = filepath.Join(os.Getenv("HOME"), ".config", "ledger", "ledger.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// parseDateRange resolves the sync window from explicit dates or a trailing
// day count.
func parseDateRange(startStr, endStr string, days int) (startDate, endDate time.Time, err error) {
	if startStr != "" && endStr != "" {
		startDate, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date format: %w", err)
		}

		endDate, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date format: %w", err)
		}

		if startDate.After(endDate) {
			return time.Time{}, time.Time{}, fmt.Errorf("start date must be before end date")
		}

		return startDate, endDate, nil
	}

	if days <= 0 {
		days = 30
	}

	endDate = time.Now()
	startDate = endDate.AddDate(0, 0, -days)

	return startDate, endDate, nil
}
