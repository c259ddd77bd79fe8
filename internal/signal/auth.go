package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// Authenticator compares an inbound webhook token with a bot's secret.
// With a hash key both sides are reduced to HMAC-SHA256 digests first so
// comparison time does not depend on secret length.
type Authenticator struct {
	hashKey []byte
}

// NewAuthenticator creates an Authenticator. An empty hashKey selects plain
// constant-time comparison.
func NewAuthenticator(hashKey string) *Authenticator {
	var key []byte
	if hashKey != "" {
		key = []byte(hashKey)
	}
	return &Authenticator{hashKey: key}
}

// Authenticate returns domain.ErrAuthentication when token does not match
// the bot's webhook secret or the bot has no secret configured.
func (a *Authenticator) Authenticate(bot domain.Bot, token string) error {
	if bot.WebhookSecret == "" || token == "" {
		return fmt.Errorf("%w: bot %s", domain.ErrAuthentication, bot.ID)
	}
	var ok bool
	if a.hashKey != nil {
		ok = hmac.Equal(a.digest(token), a.digest(bot.WebhookSecret))
	} else {
		ok = subtle.ConstantTimeCompare([]byte(token), []byte(bot.WebhookSecret)) == 1
	}
	if !ok {
		return fmt.Errorf("%w: bot %s", domain.ErrAuthentication, bot.ID)
	}
	return nil
}

func (a *Authenticator) digest(s string) []byte {
	mac := hmac.New(sha256.New, a.hashKey)
	mac.Write([]byte(s))
	return mac.Sum(nil)
}

// ExtractAuthFields reads the bot id and token from a raw payload before
// full validation runs.
func ExtractAuthFields(raw map[string]any, tokenField string) (botID, token string) {
	if tokenField == "" {
		tokenField = DefaultTokenField
	}
	return stringField(raw, FieldBotID), stringField(raw, tokenField)
}
