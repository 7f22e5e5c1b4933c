// Package clock detects auctions whose deadline elapsed while still OPEN
// and hands each to the closer. It polls rather than keeping per-auction
// timers: a missed cycle is caught by the next one and a restart loses no
// bookkeeping, because the auction row is the only source of truth.
package clock

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"auctionhouse/internal/services/auction"
)

// Run starts the polling loop and returns immediately. The loop stops
// when ctx is cancelled.
func Run(ctx context.Context, db *sql.DB, closer auction.AuctionCloser, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				Sweep(ctx, db, closer)
			}
		}
	}()
}

// Sweep closes every overdue auction once, and re-discovers closed rows
// whose closing event never went out (crash between the transition
// commit and the emission). Failures are logged and left for the next
// cycle; the closer's state guard makes re-discovery safe.
func Sweep(ctx context.Context, db *sql.DB, closer auction.AuctionCloser) {
	const q = `SELECT id FROM auctions
	            WHERE (status = 'OPEN' AND ends_at <= now())
	               OR (status = 'CLOSED' AND NOT event_emitted)`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		zap.L().Error("clock.scan", zap.Error(err))
		return
	}

	var overdue []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			zap.L().Error("clock.scan_row", zap.Error(err))
			return
		}
		overdue = append(overdue, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		zap.L().Error("clock.scan_rows", zap.Error(err))
		return
	}

	for _, id := range overdue {
		if err := closer.Close(ctx, id); err != nil {
			zap.L().Warn("clock.close", zap.String("id", id), zap.Error(err))
		}
	}
}
