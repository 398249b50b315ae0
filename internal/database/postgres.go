package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careline/realtime/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string, maxConns, minConns int32) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// status is stored as its ordinal so forward-only updates are a comparison.
const messageColumns = `id, sender_id, receiver_id, content, status, sent_at, delivered_at, read_at, conversation_id`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var status int16
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &status,
		&msg.SentAt, &msg.DeliveredAt, &msg.ReadAt, &msg.ConversationID,
	)
	if err != nil {
		return nil, err
	}
	msg.Status = models.MessageStatus(status)
	return msg, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

func (db *PostgresDB) SetStatus(ctx context.Context, id string, status models.MessageStatus, at time.Time) (bool, error) {
	var query string
	switch status {
	case models.StatusDelivered:
		query = `UPDATE messages SET status = $2, delivered_at = $3 WHERE id = $1 AND status < $2`
	case models.StatusRead:
		// A message read without a recorded delivery is also delivered.
		query = `
			UPDATE messages
			SET status = $2, read_at = $3, delivered_at = COALESCE(delivered_at, $3)
			WHERE id = $1 AND status < $2`
	default:
		return false, fmt.Errorf("set status %s: not a forward transition", status)
	}

	tag, err := db.pool.Exec(ctx, query, id, int16(status), at)
	if err != nil {
		return false, fmt.Errorf("set status of message %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) BulkSetRead(ctx context.Context, conversationID, userID string, at time.Time) ([]*models.Message, error) {
	query := `
		UPDATE messages
		SET status = $3, read_at = $4, delivered_at = COALESCE(delivered_at, $4)
		WHERE conversation_id = $1 AND receiver_id = $2 AND status < $3
		RETURNING ` + messageColumns

	rows, err := db.pool.Query(ctx, query, conversationID, userID, int16(models.StatusRead), at)
	if err != nil {
		return nil, fmt.Errorf("bulk read conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk read conversation %s: %w", conversationID, err)
	}
	return messages, nil
}

func (db *PostgresDB) ListDistinctPartners(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT partner FROM (
			SELECT receiver_id AS partner FROM messages WHERE sender_id = $1
			UNION
			SELECT sender_id AS partner FROM messages WHERE receiver_id = $1
		) p
		ORDER BY partner`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list partners of %s: %w", userID, err)
	}
	defer rows.Close()

	var partners []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (db *PostgresDB) GetDisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	query := `SELECT full_name, COALESCE(avatar_url, '') FROM users WHERE id = $1`

	info := &models.DisplayInfo{}
	err := db.pool.QueryRow(ctx, query, userID).Scan(&info.Name, &info.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get display info for %s: %w", userID, err)
	}
	return info, nil
}
