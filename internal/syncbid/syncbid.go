package syncbid

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auctionhouse/internal/ledger/redisledger"
)

// Run tails the bid stream and persists every admitted bid. The stream
// entry id becomes the bid's durable identity, so replays after a crash
// are absorbed by the primary key.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{redisledger.BidStream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncbid.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := Persist(ctx, db, entries); err != nil {
				zap.L().Error("syncbid.persist", zap.Error(err))
				continue // retry the same batch next round
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

// Persist writes a batch of stream entries into the bids table.
func Persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
	             VALUES ($1, $2, $3, $4, to_timestamp($5))
	             ON CONFLICT (id) DO NOTHING`
	for _, m := range msgs {
		aid, _ := m.Values["aid"].(string)
		bidder, _ := m.Values["bidder"].(string)
		amt, _ := m.Values["amount"].(string)
		at, _ := m.Values["at"].(string)

		amount, _ := strconv.ParseFloat(amt, 64)
		ts, _ := strconv.ParseInt(at, 10, 64)
		if _, err := tx.ExecContext(ctx, ins, m.ID, aid, bidder, amount, ts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
