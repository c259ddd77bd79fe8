package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event filters audit entries by name. Trade listings ignore it.
	Event string
}

// BotStore reads bot configurations. Writes happen elsewhere.
type BotStore interface {
	// GetByIDForOwner returns ErrNotFound both when the bot does not exist
	// and when it belongs to another owner.
	GetByIDForOwner(ctx context.Context, id, ownerID string) (Bot, error)
	// GetByID is used only by webhook authentication, which learns the
	// owner from the bot itself.
	GetByID(ctx context.Context, id string) (Bot, error)
}

// TradeStore persists executed trades.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	// LatestBuy returns the most recent buy for bot+symbol or ErrNotFound.
	LatestBuy(ctx context.Context, botID, symbol string) (Trade, error)
	ListByBot(ctx context.Context, botID, ownerID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// sensitiveAuditKeys never reach the audit log in clear.
var sensitiveAuditKeys = map[string]bool{
	"api_key": true, "api_secret": true, "password": true,
	"secret": true, "token": true, "webhook_secret": true,
}

// RedactAuditDetail returns a copy of detail with credential-like keys
// masked. Nested maps are redacted too.
func RedactAuditDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		switch {
		case sensitiveAuditKeys[k]:
			out[k] = "[redacted]"
		default:
			if m, ok := v.(map[string]any); ok {
				v = RedactAuditDetail(m)
			}
			out[k] = v
		}
	}
	return out
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
