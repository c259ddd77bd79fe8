package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// BotStore implements domain.BotStore.
type BotStore struct {
	db *sql.DB
}

// NewBotStore creates a BotStore on d.
func NewBotStore(d *DB) *BotStore { return &BotStore{db: d.sql} }

const botSelectCols = `id, owner_id, name, exchange_id, encrypted_api_key,
	encrypted_api_secret, encrypted_password, order_size_percent,
	webhook_secret, enabled, created_at`

func scanBot(row *sql.Row) (domain.Bot, error) {
	var (
		b       domain.Bot
		percent sql.NullFloat64
		created int64
	)
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.ExchangeID, &b.EncryptedAPIKey,
		&b.EncryptedAPISecret, &b.EncryptedPassword, &percent,
		&b.WebhookSecret, &b.Enabled, &created,
	)
	if err != nil {
		return domain.Bot{}, err
	}
	if percent.Valid {
		b.OrderSizePercent = domain.Float(percent.Float64)
	}
	b.CreatedAt = fromUnix(created)
	return b, nil
}

func (s *BotStore) GetByIDForOwner(ctx context.Context, id, ownerID string) (domain.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botSelectCols+` FROM bots WHERE id = ? AND owner_id = ?`, id, ownerID)
	b, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bot{}, domain.ErrNotFound
		}
		return domain.Bot{}, fmt.Errorf("sqlite: get bot %s: %w", id, err)
	}
	return b, nil
}

func (s *BotStore) GetByID(ctx context.Context, id string) (domain.Bot, error) {
	b, err := scanBot(s.db.QueryRowContext(ctx, `SELECT `+botSelectCols+` FROM bots WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bot{}, domain.ErrNotFound
		}
		return domain.Bot{}, fmt.Errorf("sqlite: get bot %s: %w", id, err)
	}
	return b, nil
}

// Save inserts or replaces a bot. The service never calls it; local setups
// and tests use it to seed bots.
func (s *BotStore) Save(ctx context.Context, b domain.Bot) error {
	var percent sql.NullFloat64
	if b.OrderSizePercent != nil {
		percent = sql.NullFloat64{Float64: *b.OrderSizePercent, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bots (`+botSelectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Name, b.ExchangeID, b.EncryptedAPIKey,
		b.EncryptedAPISecret, b.EncryptedPassword, percent,
		b.WebhookSecret, b.Enabled, toUnix(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save bot %s: %w", b.ID, err)
	}
	return nil
}
