package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore creates a TradeStore on d.
func NewTradeStore(d *DB) *TradeStore { return &TradeStore{db: d.sql} }

const tradeSelectCols = `id, user_id, bot_id, external_id, exchange_id, symbol,
	side, order_type, status, size, price, pnl, strategy, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (domain.Trade, error) {
	var (
		t       domain.Trade
		pnl     sql.NullFloat64
		created int64
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.BotID, &t.ExternalID, &t.ExchangeID, &t.Symbol,
		&t.Side, &t.OrderType, &t.Status, &t.Size, &t.Price, &pnl,
		&t.Strategy, &created,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	if pnl.Valid {
		t.PnL = domain.Float(pnl.Float64)
	}
	t.CreatedAt = fromUnix(created)
	return t, nil
}

func scanTradeRows(rows *sql.Rows) ([]domain.Trade, error) {
	defer rows.Close()
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	var pnl sql.NullFloat64
	if t.PnL != nil {
		pnl = sql.NullFloat64{Float64: *t.PnL, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeSelectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.BotID, t.ExternalID, t.ExchangeID, t.Symbol,
		string(t.Side), string(t.OrderType), string(t.Status), t.Size, t.Price, pnl,
		t.Strategy, toUnix(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (s *TradeStore) LatestBuy(ctx context.Context, botID, symbol string) (domain.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeSelectCols+` FROM trades
		WHERE bot_id = ? AND symbol = ? AND side = 'buy'
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, botID, symbol)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("sqlite: latest buy %s %s: %w", botID, symbol, err)
	}
	return t, nil
}

func (s *TradeStore) ListByBot(ctx context.Context, botID, ownerID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE bot_id = ? AND user_id = ?`
	args := []any{botID, ownerID}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, toUnix(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, toUnix(*opts.Until))
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades by bot: %w", err)
	}
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan trades by bot: %w", err)
	}
	return trades, nil
}

func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < ? ORDER BY created_at ASC`
	args := []any{toUnix(before)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades before: %w", err)
	}
	return scanTradeRows(rows)
}

func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE created_at < ?`, toUnix(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete trades before: %w", err)
	}
	return res.RowsAffected()
}
