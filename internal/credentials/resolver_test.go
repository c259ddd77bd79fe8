package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/crypto"
	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

type memBots map[string]domain.Bot

func (m memBots) GetByIDForOwner(_ context.Context, id, ownerID string) (domain.Bot, error) {
	b, ok := m[id]
	if !ok || b.OwnerID != ownerID {
		return domain.Bot{}, domain.ErrNotFound
	}
	return b, nil
}

func (m memBots) GetByID(_ context.Context, id string) (domain.Bot, error) {
	b, ok := m[id]
	if !ok {
		return domain.Bot{}, domain.ErrNotFound
	}
	return b, nil
}

type testVenue struct {
	exchange.BaseVenue
	id    string
	creds []string
}

func (v testVenue) ID() string                    { return v.id }
func (v testVenue) RequiredCredentials() []string { return v.creds }
func (v testVenue) Rules() exchange.VenueRules    { return exchange.VenueRules{} }
func (v testVenue) NewClient(*domain.ResolvedCredentials) (exchange.Client, error) {
	return nil, errors.New("not used")
}

func setup(t *testing.T) (*crypto.KeyManager, *exchange.Registry) {
	t.Helper()
	km, err := crypto.NewKeyManager(map[int][]byte{1: crypto.DeriveKey("pass", "salt")}, 1)
	require.NoError(t, err)
	reg := exchange.NewRegistry(
		testVenue{id: "binance", creds: []string{domain.CredAPIKey, domain.CredAPISecret}},
		testVenue{id: "okx", creds: []string{domain.CredAPIKey, domain.CredAPISecret, domain.CredPassword}},
	)
	return km, reg
}

func encrypt(t *testing.T, km *crypto.KeyManager, s string) string {
	t.Helper()
	ct, err := km.Encrypt(s)
	require.NoError(t, err)
	return ct
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveDecryptsCredentials(t *testing.T) {
	km, reg := setup(t)
	bots := memBots{"b1": {
		ID: "b1", OwnerID: "u1", ExchangeID: "okx", Enabled: true,
		EncryptedAPIKey:    encrypt(t, km, "key"),
		EncryptedAPISecret: encrypt(t, km, "secret"),
		EncryptedPassword:  encrypt(t, km, "pass"),
	}}
	r := NewResolver(bots, reg, km, discard())

	bot, creds, err := r.Resolve(context.Background(), "b1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "okx", bot.ExchangeID)
	assert.Equal(t, domain.ResolvedCredentials{APIKey: "key", APISecret: "secret", Password: "pass"}, creds)
}

func TestResolveOtherOwnerIsNotFound(t *testing.T) {
	km, reg := setup(t)
	bots := memBots{"b1": {ID: "b1", OwnerID: "u1", ExchangeID: "binance", Enabled: true}}
	_, _, err := NewResolver(bots, reg, km, discard()).Resolve(context.Background(), "b1", "intruder")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveConfigurationErrors(t *testing.T) {
	km, reg := setup(t)
	bots := memBots{
		"unknown":  {ID: "unknown", OwnerID: "u", ExchangeID: "kraken", Enabled: true},
		"disabled": {ID: "disabled", OwnerID: "u", ExchangeID: "binance"},
		"nopass": {
			ID: "nopass", OwnerID: "u", ExchangeID: "okx", Enabled: true,
			EncryptedAPIKey: encrypt(t, km, "k"), EncryptedAPISecret: encrypt(t, km, "s"),
		},
	}
	r := NewResolver(bots, reg, km, discard())
	for id := range bots {
		_, _, err := r.Resolve(context.Background(), id, "u")
		assert.ErrorIs(t, err, domain.ErrConfiguration, id)
	}

	_, _, err := r.Resolve(context.Background(), "nopass", "u")
	assert.Contains(t, err.Error(), domain.CredPassword)
}

func TestResolveDecryptFailureIsCredentialError(t *testing.T) {
	km, reg := setup(t)
	bots := memBots{"b1": {
		ID: "b1", OwnerID: "u1", ExchangeID: "binance", Enabled: true,
		EncryptedAPIKey:    encrypt(t, km, "key"),
		EncryptedAPISecret: "plaintext-secret",
	}}
	_, creds, err := NewResolver(bots, reg, km, discard()).Resolve(context.Background(), "b1", "u1")
	require.ErrorIs(t, err, domain.ErrCredential)

	var ce *domain.CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CredAPISecret, ce.Field)
	assert.NotContains(t, err.Error(), "plaintext-secret")
	assert.Empty(t, creds.APIKey, "no partial credentials are returned")
}
