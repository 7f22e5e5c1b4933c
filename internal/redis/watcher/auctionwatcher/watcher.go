package auctionwatcher

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auctionhouse/internal/services/auction"
)

// Run listens to timer-key expiry events and closes the matching auction
// as soon as its deadline passes. This is a latency optimization on top
// of the deadline poll: if an event is dropped, the next poll cycle
// closes the auction anyway. Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, closer auction.AuctionCloser) {
	_ = rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer ps.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ps.Channel():
			if !ok {
				return
			}
			if !strings.HasPrefix(m.Payload, "auc_t:") {
				continue
			}
			id := strings.TrimPrefix(m.Payload, "auc_t:")
			if err := closer.Close(ctx, id); err != nil {
				zap.L().Warn("watcher.close", zap.String("id", id), zap.Error(err))
			}
		}
	}
}
