package signal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

func basePayload() map[string]any {
	return map[string]any{
		"bot_id": "b1",
		"symbol": "BTC/USDT",
		"action": "BUY",
		"secret": "s",
	}
}

func TestValidateNormalisesAndStripsToken(t *testing.T) {
	v := NewValidator("")
	raw := basePayload()
	raw["price"] = "50000"
	raw["stoplossPercent"] = 2.5
	raw["order_size"] = "25"
	raw["strategy"] = "  breakout "

	sig, err := v.Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "b1", sig.BotID)
	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, domain.OrderSideBuy, sig.Action)
	require.NotNil(t, sig.Price)
	assert.Equal(t, 50000.0, *sig.Price)
	require.NotNil(t, sig.StopLossPercent)
	assert.Equal(t, 2.5, *sig.StopLossPercent)
	require.NotNil(t, sig.OrderSizePercent)
	assert.Equal(t, 25.0, *sig.OrderSizePercent)
	assert.Nil(t, sig.Amount)
	assert.Equal(t, "breakout", sig.Strategy)
	assert.NotContains(t, sig.Fingerprint(), "|s|")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(map[string]any)
		field string
	}{
		{"missing bot id", func(m map[string]any) { delete(m, "bot_id") }, "bot_id"},
		{"missing symbol", func(m map[string]any) { m["symbol"] = "  " }, "symbol"},
		{"missing token", func(m map[string]any) { delete(m, "secret") }, "secret"},
		{"bad action", func(m map[string]any) { m["action"] = "hold" }, "action"},
		{"zero price", func(m map[string]any) { m["price"] = 0.0 }, "price"},
		{"negative amount", func(m map[string]any) { m["amount"] = "-1" }, "amount"},
		{"stop loss at 100", func(m map[string]any) { m["stoplossPercent"] = 100.0 }, "stoplossPercent"},
		{"stop loss zero", func(m map[string]any) { m["stoplossPercent"] = "0" }, "stoplossPercent"},
		{"non numeric order size", func(m map[string]any) { m["order_size"] = "half" }, "order_size"},
		{"object price", func(m map[string]any) { m["price"] = map[string]any{} }, "price"},
	}

	v := NewValidator("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := basePayload()
			tt.mut(raw)
			_, err := v.Validate(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateTreatsNullAndEmptyAsAbsent(t *testing.T) {
	raw := basePayload()
	raw["price"] = nil
	raw["amount"] = ""

	sig, err := NewValidator("").Validate(raw)
	require.NoError(t, err)
	assert.Nil(t, sig.Price)
	assert.Nil(t, sig.Amount)
	assert.False(t, sig.HasPrice())
}

func TestValidateJSONCustomTokenField(t *testing.T) {
	v := NewValidator("passphrase")
	body := []byte(`{"bot_id":"b9","symbol":"eth/usdc","action":"Sell","passphrase":"x","amount":0.5}`)

	sig, err := v.ValidateJSON(body)
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDC", sig.Symbol)
	assert.Equal(t, domain.OrderSideSell, sig.Action)
	require.NotNil(t, sig.Amount)
	assert.Equal(t, 0.5, *sig.Amount)

	_, err = v.ValidateJSON([]byte(`{"bot_id":"b9","symbol":"ETH/USDC","action":"sell","secret":"x"}`))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidateJSONRejectsNonObject(t *testing.T) {
	_, err := NewValidator("").ValidateJSON([]byte(`[1,2]`))
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewValidator("").ValidateJSON([]byte(`null`))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	bot := domain.Bot{ID: "b1", WebhookSecret: "hunter2"}

	for _, a := range []*Authenticator{NewAuthenticator(""), NewAuthenticator("pepper")} {
		require.NoError(t, a.Authenticate(bot, "hunter2"))
		require.ErrorIs(t, a.Authenticate(bot, "hunter3"), domain.ErrAuthentication)
		require.ErrorIs(t, a.Authenticate(bot, ""), domain.ErrAuthentication)
		require.ErrorIs(t, a.Authenticate(domain.Bot{ID: "b2"}, "anything"), domain.ErrAuthentication)
	}
}

func TestExtractAuthFields(t *testing.T) {
	id, tok := ExtractAuthFields(basePayload(), "")
	assert.Equal(t, "b1", id)
	assert.Equal(t, "s", tok)
}
