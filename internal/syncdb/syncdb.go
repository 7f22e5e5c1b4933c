package syncdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	activeSet  = "aucs:active"
	hashPrefix = "auc:"
)

// Run periodically mirrors every active auction's high bid into its
// Postgres row, so reads of finished or evicted auctions stay close to
// the truth even between closes.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				syncOnce(ctx, rdc, db)
			}
		}
	}()
}

func syncOnce(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	keys, err := rdc.SMembers(ctx, activeSet).Result()
	if err != nil || len(keys) == 0 {
		return
	}

	// fetch all hashes in one pipelined round-trip
	pipe := rdc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		zap.L().Error("syncdb.pipeline", zap.Error(err))
		return
	}

	// Only mirror the denormalized high-bid pair; the state transition
	// itself belongs to the closer alone.
	const upd = `UPDATE auctions
	                SET high_bid = $2, high_bidder = $3
	              WHERE id = $1 AND status = 'OPEN'`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("syncdb.tx_begin", zap.Error(err))
		return
	}
	defer tx.Rollback()

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue // key disappeared between SMEMBERS and HGETALL
		}
		id := keys[i][len(hashPrefix):]
		if _, err := tx.ExecContext(ctx, upd, id, data["hb"], data["hbid"]); err != nil {
			// The tx is aborted from here on; drop the cycle and let the
			// next tick mirror the full set.
			zap.L().Warn("syncdb.update", zap.String("id", id), zap.Error(err))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		zap.L().Warn("syncdb.commit", zap.Error(err))
	}
}
