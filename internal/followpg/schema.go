package followpg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the follows table if it does not exist.
// The layout matches the table migrated by follow.DatabaseStore.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS follows (
    id TEXT PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    target_id VARCHAR(36) NOT NULL,
    status VARCHAR(10) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_follows_pair ON follows (user_id, target_id);
CREATE INDEX IF NOT EXISTS idx_follows_target_status ON follows (target_id, status);
`)
	if err != nil {
		return fmt.Errorf("follow_store.pg.schema: %w", err)
	}
	return nil
}
