package domain

import (
	"log/slog"
	"time"
)

// Bot is a user-owned trading configuration. The core only reads bots.
type Bot struct {
	ID                 string
	OwnerID            string
	Name               string
	ExchangeID         string
	EncryptedAPIKey    string
	EncryptedAPISecret string
	EncryptedPassword  string
	OrderSizePercent   *float64
	WebhookSecret      string
	Enabled            bool
	CreatedAt          time.Time
}

// Credential field names as used by venue plugins and error messages.
const (
	CredAPIKey    = "apiKey"
	CredAPISecret = "apiSecret"
	CredPassword  = "password"
)

// Ciphertext returns the stored ciphertext for a credential field.
func (b Bot) Ciphertext(field string) string {
	switch field {
	case CredAPIKey:
		return b.EncryptedAPIKey
	case CredAPISecret:
		return b.EncryptedAPISecret
	case CredPassword:
		return b.EncryptedPassword
	}
	return ""
}

// ResolvedCredentials holds decrypted exchange secrets. Values live only in
// memory for the duration of a single pipeline run.
type ResolvedCredentials struct {
	APIKey    string
	APISecret string
	Password  string
}

// Set assigns a credential by field name.
func (c *ResolvedCredentials) Set(field, value string) {
	switch field {
	case CredAPIKey:
		c.APIKey = value
	case CredAPISecret:
		c.APISecret = value
	case CredPassword:
		c.Password = value
	}
}

// String never prints secret material.
func (c ResolvedCredentials) String() string { return "ResolvedCredentials{***}" }

// LogValue implements slog.LogValuer so credentials are redacted in logs.
func (c ResolvedCredentials) LogValue() slog.Value {
	return slog.StringValue("***")
}
