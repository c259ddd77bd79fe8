package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// DefaultBatch caps how many trades one archive run moves.
const DefaultBatch = 50_000

// TradePrefix is the key prefix every trade archive object is written under.
const TradePrefix = "archive/trades/"

// TradeArchiveStore is the slice of domain.TradeStore the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Verifier confirms an uploaded object is readable. *Bucket implements it.
type Verifier interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver implements domain.Archiver: trades older than a cutoff are
// written to the bucket as JSONL and then deleted from the primary store.
// Rows are only deleted once the object has been verified.
type Archiver struct {
	writer   domain.BlobWriter
	verifier Verifier
	trades   TradeArchiveStore
	audit    domain.AuditStore
	batch    int
	logger   *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, verifier Verifier, trades TradeArchiveStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		verifier: verifier,
		trades:   trades,
		audit:    audit,
		batch:    DefaultBatch,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// archivedTrade is the JSONL line format.
type archivedTrade struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	BotID      string    `json:"bot_id"`
	ExternalID string    `json:"external_id"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	OrderType  string    `json:"order_type"`
	Status     string    `json:"status"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	PnL        *float64  `json:"pnl"`
	Strategy   string    `json:"strategy,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveTrades moves trades created before the cutoff to the bucket and
// returns how many rows were deleted. When more than one batch is pending
// the run stops at the newest timestamp it fully covers; call again to
// continue.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, a.batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	cutoff := before
	if len(trades) == a.batch {
		// Trades sharing the last timestamp may continue past the batch.
		cutoff = trades[len(trades)-1].CreatedAt
		n := len(trades)
		for n > 0 && !trades[n-1].CreatedAt.Before(cutoff) {
			n--
		}
		trades = trades[:n]
		if len(trades) == 0 {
			return 0, fmt.Errorf("s3blob: more than %d trades share timestamp %s", a.batch, cutoff.Format(time.RFC3339Nano))
		}
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath(trades[0].CreatedAt, cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	if a.verifier != nil {
		ok, err := a.verifier.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: verify %s: %w", path, err)
		}
		if !ok {
			return 0, fmt.Errorf("s3blob: uploaded archive %s not found", path)
		}
	}

	deleted, err := a.trades.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades delete: %w", err)
	}
	if deleted != int64(len(trades)) {
		a.logger.WarnContext(ctx, "archived and deleted counts differ",
			slog.Int("archived", len(trades)),
			slog.Int64("deleted", deleted),
		)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int64("count", deleted),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "trades_archived", map[string]any{
			"path":   path,
			"count":  deleted,
			"before": cutoff.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return deleted, nil
}

// archivePath partitions archives by the month of the oldest trade:
//
//	archive/trades/2025/01/20250101T000000Z-20250201T000000Z.jsonl
func archivePath(from, to time.Time) string {
	const stamp = "20060102T150405Z"
	from, to = from.UTC(), to.UTC()
	return fmt.Sprintf("%s%s/%s-%s.jsonl", TradePrefix, from.Format("2006/01"), from.Format(stamp), to.Format(stamp))
}

// marshalJSONL writes one compact JSON object per trade.
func marshalJSONL(trades []domain.Trade) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, t := range trades {
		rec := archivedTrade{
			ID:         t.ID,
			UserID:     t.UserID,
			BotID:      t.BotID,
			ExternalID: t.ExternalID,
			Exchange:   t.ExchangeID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			OrderType:  string(t.OrderType),
			Status:     string(t.Status),
			Size:       t.Size,
			Price:      t.Price,
			PnL:        t.PnL,
			Strategy:   t.Strategy,
			CreatedAt:  t.CreatedAt.UTC(),
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
