package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, bot_id, external_id, exchange_id, symbol,
	side, order_type, status, size, price, pnl, strategy, created_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(
		&t.ID, &t.UserID, &t.BotID, &t.ExternalID, &t.ExchangeID, &t.Symbol,
		&t.Side, &t.OrderType, &t.Status, &t.Size, &t.Price, &t.PnL,
		&t.Strategy, &t.CreatedAt,
	)
	return t, err
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
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

// Insert persists a single trade.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, user_id, bot_id, external_id, exchange_id, symbol,
			side, order_type, status, size, price, pnl, strategy, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14
		)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.BotID, t.ExternalID, t.ExchangeID, t.Symbol,
		string(t.Side), string(t.OrderType), string(t.Status), t.Size, t.Price, t.PnL,
		t.Strategy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// LatestBuy returns the most recent buy for bot+symbol.
func (s *TradeStore) LatestBuy(ctx context.Context, botID, symbol string) (domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE bot_id = $1 AND symbol = $2 AND side = 'buy'
		ORDER BY created_at DESC LIMIT 1`
	t, err := scanTrade(s.pool.QueryRow(ctx, query, botID, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: latest buy %s %s: %w", botID, symbol, err)
	}
	return t, nil
}

// ListByBot returns trades for a bot owned by ownerID, newest first, with
// pagination and optional time filtering.
func (s *TradeStore) ListByBot(ctx context.Context, botID, ownerID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE bot_id = $1 AND user_id = $2`
	args := []any{botID, ownerID}
	argIdx := 3

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by bot: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by bot: %w", err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades created strictly before the given
// time, oldest first (for archiving). A non-positive limit returns all.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades created before the given time. Returns the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
