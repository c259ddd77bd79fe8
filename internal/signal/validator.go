// Package signal turns raw webhook alerts into validated domain.Signal
// values and authenticates them against the owning bot's webhook secret.
package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// Inbound payload field names.
const (
	FieldBotID           = "bot_id"
	FieldSymbol          = "symbol"
	FieldAction          = "action"
	FieldPrice           = "price"
	FieldStrategy        = "strategy"
	FieldStopLossPercent = "stoplossPercent"
	FieldAmount          = "amount"
	FieldOrderSize       = "order_size"

	DefaultTokenField = "secret"
)

// required holds the mandatory string fields after normalisation.
type required struct {
	BotID  string `validate:"required"`
	Symbol string `validate:"required"`
	Action string `validate:"required,oneof=buy sell"`
	Token  string `validate:"required"`
}

// numericRule pairs a payload field with its range tag.
type numericRule struct {
	field string
	tag   string
}

var numericRules = []numericRule{
	{FieldPrice, "gt=0"},
	{FieldStopLossPercent, "gt=0,lt=100"},
	{FieldAmount, "gt=0"},
	{FieldOrderSize, "gt=0"},
}

// Validator normalises and validates alerts. It is stateless apart from
// configuration and safe for concurrent use.
type Validator struct {
	tokenField string
	v          *validator.Validate
}

// NewValidator creates a Validator that expects the auth token in
// tokenField (DefaultTokenField when empty).
func NewValidator(tokenField string) *Validator {
	if tokenField == "" {
		tokenField = DefaultTokenField
	}
	return &Validator{
		tokenField: tokenField,
		v:          validator.New(validator.WithRequiredStructEnabled()),
	}
}

// TokenField returns the payload field holding the webhook token.
func (v *Validator) TokenField() string { return v.tokenField }

// ValidateJSON decodes body and validates it.
func (v *Validator) ValidateJSON(body []byte) (domain.Signal, error) {
	raw, err := Decode(body)
	if err != nil {
		return domain.Signal{}, err
	}
	return v.Validate(raw)
}

// Decode parses a JSON object, keeping numbers exact.
func Decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &domain.ValidationError{Reason: "payload is not a JSON object"}
	}
	if raw == nil {
		return nil, &domain.ValidationError{Reason: "payload is empty"}
	}
	return raw, nil
}

// Validate converts raw into a Signal. The auth token is checked for
// presence only; comparison happens in Authenticator. The returned Signal
// never carries the token.
func (v *Validator) Validate(raw map[string]any) (domain.Signal, error) {
	if raw == nil {
		return domain.Signal{}, &domain.ValidationError{Reason: "payload is empty"}
	}

	req := required{
		BotID:  stringField(raw, FieldBotID),
		Symbol: strings.ToUpper(stringField(raw, FieldSymbol)),
		Action: strings.ToLower(stringField(raw, FieldAction)),
		Token:  stringField(raw, v.tokenField),
	}
	if err := v.v.Struct(req); err != nil {
		return domain.Signal{}, v.translate(err)
	}

	nums := make(map[string]*float64, len(numericRules))
	for _, rule := range numericRules {
		val, ok, err := numberField(raw, rule.field)
		if err != nil {
			return domain.Signal{}, &domain.ValidationError{Field: rule.field, Reason: err.Error()}
		}
		if !ok {
			continue
		}
		if err := v.v.Var(val, rule.tag); err != nil {
			return domain.Signal{}, &domain.ValidationError{Field: rule.field, Reason: rangeReason(rule.tag)}
		}
		nums[rule.field] = domain.Float(val)
	}

	return domain.Signal{
		BotID:            req.BotID,
		Symbol:           req.Symbol,
		Action:           domain.OrderSide(req.Action),
		Price:            nums[FieldPrice],
		Strategy:         stringField(raw, FieldStrategy),
		StopLossPercent:  nums[FieldStopLossPercent],
		Amount:           nums[FieldAmount],
		OrderSizePercent: nums[FieldOrderSize],
	}, nil
}

// translate maps the first validator failure to a ValidationError naming
// the payload field.
func (v *Validator) translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := map[string]string{
		"BotID":  FieldBotID,
		"Symbol": FieldSymbol,
		"Action": FieldAction,
		"Token":  v.tokenField,
	}[fe.Field()]
	switch fe.Tag() {
	case "required":
		return &domain.ValidationError{Field: field, Reason: "is required"}
	case "oneof":
		return &domain.ValidationError{Field: field, Reason: "must be buy or sell"}
	default:
		return &domain.ValidationError{Field: field, Reason: "is invalid"}
	}
}

func rangeReason(tag string) string {
	switch tag {
	case "gt=0,lt=100":
		return "must be between 0 and 100 (exclusive)"
	default:
		return "must be greater than 0"
	}
}

// stringField returns a trimmed string value or "" when absent or not a
// scalar.
func stringField(raw map[string]any, key string) string {
	switch t := raw[key].(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// numberField coerces JSON numbers and numeric strings. Null and empty
// strings count as absent.
func numberField(raw map[string]any, key string) (float64, bool, error) {
	val, present := raw[key]
	if !present || val == nil {
		return 0, false, nil
	}
	var f float64
	switch t := val.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("is not a number")
		}
		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("is not a number")
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("is not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("is not a finite number")
	}
	return f, true, nil
}
