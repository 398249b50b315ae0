package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/careline/realtime/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE users (
	id         TEXT PRIMARY KEY,
	full_name  TEXT NOT NULL,
	avatar_url TEXT
);
CREATE TABLE messages (
	id              TEXT PRIMARY KEY,
	sender_id       TEXT NOT NULL,
	receiver_id     TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	status          SMALLINT NOT NULL DEFAULT 0,
	sent_at         TIMESTAMPTZ NOT NULL,
	delivered_at    TIMESTAMPTZ,
	read_at         TIMESTAMPTZ,
	conversation_id TEXT NOT NULL
);`

// setupTestPostgres runs against TEST_DATABASE_URL inside a throwaway schema.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := "rt_test_" + uuid.NewString()[:8]

	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
	require.NoError(t, err)
	_, err = admin.Exec(ctx, testSchema)
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := NewPostgresDB(ctx, u.String(), 4, 1)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		_ = admin.Close(context.Background())
	})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, m := range []struct{ id, from, to, conv string }{
		{"m1", "a", "b", "ab"},
		{"m2", "a", "b", "ab"},
		{"m3", "b", "a", "ab"},
		{"m4", "c", "a", "ac"},
	} {
		_, err := admin.Exec(ctx,
			`INSERT INTO messages (id, sender_id, receiver_id, sent_at, conversation_id) VALUES ($1, $2, $3, $4, $5)`,
			m.id, m.from, m.to, base.Add(time.Duration(i)*time.Minute), m.conv)
		require.NoError(t, err)
	}
	_, err = admin.Exec(ctx, `INSERT INTO users (id, full_name, avatar_url) VALUES ('a', 'Alice A', NULL)`)
	require.NoError(t, err)

	return db
}

func TestPostgresDB_SetStatusIsForwardOnly(t *testing.T) {
	db := setupTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ok, err := db.SetStatus(ctx, "m1", models.StatusDelivered, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.SetStatus(ctx, "m1", models.StatusDelivered, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.SetStatus(ctx, "m1", models.StatusRead, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	msg, err := db.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, msg.Status)
	require.NotNil(t, msg.DeliveredAt)
	assert.True(t, now.Equal(*msg.DeliveredAt))

	_, err = db.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresDB_BulkSetReadAndPartners(t *testing.T) {
	db := setupTestPostgres(t)
	ctx := context.Background()

	changed, err := db.BulkSetRead(ctx, "ab", "b", time.Now())
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	changed, err = db.BulkSetRead(ctx, "ab", "b", time.Now())
	require.NoError(t, err)
	assert.Empty(t, changed)

	partners, err := db.ListDistinctPartners(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, partners)

	info, err := db.GetDisplayInfo(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice A", info.Name)
	assert.Empty(t, info.AvatarURL)
}
