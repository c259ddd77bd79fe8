// Package credentials loads a bot for its owner and decrypts the exchange
// secrets it needs, just before they are used.
package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/exchange"
)

// Decrypter turns a stored ciphertext into plaintext. crypto.KeyManager
// implements it.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// VenueLookup resolves an exchange id to its plugin.
type VenueLookup interface {
	Lookup(id string) (exchange.Venue, error)
}

// Resolver produces decrypted credentials for a bot.
type Resolver struct {
	bots      domain.BotStore
	venues    VenueLookup
	decrypter Decrypter
	logger    *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(bots domain.BotStore, venues VenueLookup, decrypter Decrypter, logger *slog.Logger) *Resolver {
	return &Resolver{
		bots:      bots,
		venues:    venues,
		decrypter: decrypter,
		logger:    logger.With(slog.String("component", "credentials")),
	}
}

// Resolve loads the bot owned by ownerID and decrypts every credential it
// holds. A bot owned by someone else is reported as domain.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, botID, ownerID string) (domain.Bot, domain.ResolvedCredentials, error) {
	var creds domain.ResolvedCredentials

	bot, err := r.bots.GetByIDForOwner(ctx, botID, ownerID)
	if err != nil {
		return domain.Bot{}, creds, fmt.Errorf("credentials: load bot %s: %w", botID, err)
	}
	if !bot.Enabled {
		return bot, creds, fmt.Errorf("credentials: bot %s is disabled: %w", botID, domain.ErrConfiguration)
	}

	venue, err := r.venues.Lookup(bot.ExchangeID)
	if err != nil {
		return bot, creds, fmt.Errorf("credentials: bot %s exchange %q not available: %v: %w",
			botID, bot.ExchangeID, err, domain.ErrConfiguration)
	}

	for _, field := range venue.RequiredCredentials() {
		if bot.Ciphertext(field) == "" {
			return bot, creds, fmt.Errorf("credentials: bot %s is missing %s for %s: %w",
				botID, field, venue.ID(), domain.ErrConfiguration)
		}
	}

	for _, field := range []string{domain.CredAPIKey, domain.CredAPISecret, domain.CredPassword} {
		ct := bot.Ciphertext(field)
		if ct == "" {
			continue
		}
		plain, err := r.decrypter.Decrypt(ct)
		if err != nil {
			r.logger.WarnContext(ctx, "credential decryption failed",
				slog.String("bot_id", botID),
				slog.String("field", field),
			)
			return bot, domain.ResolvedCredentials{}, &domain.CredentialError{BotID: botID, Field: field, Err: err}
		}
		creds.Set(field, plain)
	}
	return bot, creds, nil
}
