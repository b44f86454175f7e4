// Package dwolla provides a client for interacting with the Dwolla API.
package dwolla

import "fmt"

// API base URLs per environment.
const (
	productionBaseURL = "https://api.dwolla.com"
	sandboxBaseURL    = "https://api-sandbox.dwolla.com"
)

// Config holds Dwolla API configuration.
type Config struct {
	ClientID        string
	Secret          string
	Environment     string // sandbox or production
	MasterAccountID string // the operator's house account
	BaseURL         string // optional override, used by tests
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("dwolla client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("dwolla secret is required")
	}
	if c.MasterAccountID == "" {
		return fmt.Errorf("dwolla master account ID is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("dwolla environment is required")
	}

	validEnvs := map[string]bool{
		"sandbox":    true,
		"production": true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid Dwolla environment: must be sandbox or production")
	}

	return nil
}

// apiBase returns the root URL for API calls.
func (c *Config) apiBase() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// tokenURL returns the client-credential exchange endpoint.
func (c *Config) tokenURL() string {
	return c.apiBase() + "/token"
}

// isProduction reports whether error messages should be sanitized.
func (c *Config) isProduction() bool {
	return c.Environment == "production"
}
