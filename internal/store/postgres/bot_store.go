package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// BotStore implements domain.BotStore using PostgreSQL. Bots are written by
// the account service; this store only reads them.
type BotStore struct {
	pool *pgxpool.Pool
}

// NewBotStore creates a new BotStore backed by the given connection pool.
func NewBotStore(pool *pgxpool.Pool) *BotStore {
	return &BotStore{pool: pool}
}

const botSelectCols = `id, owner_id, name, exchange_id, encrypted_api_key,
	encrypted_api_secret, encrypted_password, order_size_percent,
	webhook_secret, enabled, created_at`

func scanBot(row pgx.Row) (domain.Bot, error) {
	var b domain.Bot
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.ExchangeID, &b.EncryptedAPIKey,
		&b.EncryptedAPISecret, &b.EncryptedPassword, &b.OrderSizePercent,
		&b.WebhookSecret, &b.Enabled, &b.CreatedAt,
	)
	return b, err
}

// GetByIDForOwner returns the bot only when ownerID owns it.
func (s *BotStore) GetByIDForOwner(ctx context.Context, id, ownerID string) (domain.Bot, error) {
	query := `SELECT ` + botSelectCols + ` FROM bots WHERE id = $1 AND owner_id = $2`
	b, err := scanBot(s.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bot{}, domain.ErrNotFound
		}
		return domain.Bot{}, fmt.Errorf("postgres: get bot %s: %w", id, err)
	}
	return b, nil
}

// GetByID returns a bot regardless of owner.
func (s *BotStore) GetByID(ctx context.Context, id string) (domain.Bot, error) {
	query := `SELECT ` + botSelectCols + ` FROM bots WHERE id = $1`
	b, err := scanBot(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bot{}, domain.ErrNotFound
		}
		return domain.Bot{}, fmt.Errorf("postgres: get bot %s: %w", id, err)
	}
	return b, nil
}
