package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const retention = 30 * 24 * time.Hour

// Cleanup removes devices, with their properties and state, not seen for 30 days.
func (db *Database) Cleanup(ctx context.Context) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM device WHERE last_seen < $1", db.now().Add(-retention))
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		db.logger.Info("removed stale devices", zap.Int64("count", n))
	}
	return nil
}
