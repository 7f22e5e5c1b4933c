// Package closer owns the OPEN -> CLOSED transition. Whatever triggers
// it (deadline poll, expiry watcher, seller stop), the conditional update
// on the auction row makes the transition fire exactly once; everything
// after a lost race is a no-op.
package closer

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"auctionhouse/internal/ledger"
	"auctionhouse/internal/notify"
)

const lockTTL = 5 * time.Second

type Closer struct {
	led     ledger.Ledger
	db      *sql.DB
	emitter notify.Emitter
}

func New(led ledger.Ledger, db *sql.DB, emitter notify.Emitter) *Closer {
	return &Closer{led: led, db: db, emitter: emitter}
}

// Close finalizes one auction: record the winning bid, flip the row, emit
// the closing event. Safe to invoke repeatedly and concurrently; only the
// invocation that actually flips the row emits. A failed transition
// leaves the row OPEN for the next clock cycle.
func (c *Closer) Close(ctx context.Context, auctionID string) error {
	release, ok := c.led.TryLock(ctx, auctionID, lockTTL)
	if !ok {
		return nil // someone else is finalizing this auction right now
	}
	defer release()

	var (
		sellerID, title, status string
		eventEmitted            bool
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT seller_id, title, status, event_emitted FROM auctions WHERE id = $1`,
		auctionID).Scan(&sellerID, &title, &status, &eventEmitted)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrAuctionNotFound
	}
	if err != nil {
		return err
	}
	if status == ledger.StateClosed {
		if !eventEmitted {
			// The transition committed but the process died before the
			// event went out; deliver it now.
			return c.emitBacklog(ctx, auctionID, sellerID, title)
		}
		// Re-discovered by an overlapping cycle after the transition
		// already committed; only the cache may still need flipping.
		return c.led.Finish(ctx, auctionID)
	}

	snap, err := c.led.Snapshot(ctx, auctionID)
	if err != nil {
		zap.L().Warn("closer.snapshot", zap.String("id", auctionID), zap.Error(err))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	winner, err := c.resolveWinner(ctx, tx, auctionID, snap)
	if err != nil {
		return err
	}

	transitioned, err := flipRow(ctx, tx, auctionID, winner)
	if err != nil {
		return err
	}
	if !transitioned {
		// Another closer committed between our status read and here.
		return c.led.Finish(ctx, auctionID)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if err := c.led.Finish(ctx, auctionID); err != nil {
		zap.L().Warn("closer.finish_cache", zap.String("id", auctionID), zap.Error(err))
	}

	ev := notify.ClosingEvent{
		AuctionID: auctionID,
		Title:     title,
		SellerID:  sellerID,
		Winner:    winner,
		ClosedAt:  time.Now().UTC(),
	}
	if err := c.emitter.EmitClose(ctx, ev); err != nil {
		// Row stays event_emitted = false; the sweep's backlog scan
		// re-delivers on the next cycle.
		zap.L().Error("closer.emit_close", zap.String("id", auctionID), zap.Error(err))
	} else {
		c.markEmitted(ctx, auctionID)
	}
	zap.L().Info("auction closed",
		zap.String("id", auctionID),
		zap.Bool("has_winner", winner != nil))
	return nil
}

// emitBacklog rebuilds and delivers the closing event for a row that
// transitioned without a recorded emission (crash between commit and
// emit). Delivery is at-least-once across that crash window; consumers
// dedupe on auction id.
func (c *Closer) emitBacklog(ctx context.Context, auctionID, sellerID, title string) error {
	var (
		winBidID, highBidder string
		highBid              float64
		closedAt             sql.NullTime
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT coalesce(winning_bid_id, ''), coalesce(high_bidder, ''), high_bid, closed_at
		   FROM auctions WHERE id = $1`, auctionID).
		Scan(&winBidID, &highBidder, &highBid, &closedAt)
	if err != nil {
		return err
	}

	ev := notify.ClosingEvent{
		AuctionID: auctionID,
		Title:     title,
		SellerID:  sellerID,
		ClosedAt:  time.Now().UTC(),
	}
	if closedAt.Valid {
		ev.ClosedAt = closedAt.Time.UTC()
	}
	if winBidID != "" {
		ev.Winner = &notify.Winner{BidID: winBidID, BidderID: highBidder, Amount: highBid}
	}

	if err := c.emitter.EmitClose(ctx, ev); err != nil {
		return err
	}
	c.markEmitted(ctx, auctionID)
	zap.L().Info("auction closing event recovered", zap.String("id", auctionID))
	return c.led.Finish(ctx, auctionID)
}

func (c *Closer) markEmitted(ctx context.Context, auctionID string) {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE auctions SET event_emitted = TRUE WHERE id = $1`, auctionID); err != nil {
		zap.L().Warn("closer.mark_emitted", zap.String("id", auctionID), zap.Error(err))
	}
}

// resolveWinner picks the winning bid: the cached highest when present
// (persisted here idempotently in case the stream tail lagged), otherwise
// the durable ledger's maximum. nil means no bids were ever admitted.
func (c *Closer) resolveWinner(ctx context.Context, tx *sql.Tx, auctionID string, snap *ledger.Snapshot) (*notify.Winner, error) {
	if snap != nil && snap.HasBids() {
		const ins = `
		  INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
		       VALUES ($1, $2, $3, $4, $5)
		  ON CONFLICT (id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, ins,
			snap.HighBidID, auctionID, snap.HighBidder, snap.HighBid,
			bidPlacedAt(snap.HighBidID)); err != nil {
			return nil, err
		}
		return &notify.Winner{
			BidID:    snap.HighBidID,
			BidderID: snap.HighBidder,
			Amount:   snap.HighBid,
		}, nil
	}

	const q = `SELECT id, bidder_id, amount FROM bids
	            WHERE auction_id = $1
	         ORDER BY amount DESC, placed_at ASC LIMIT 1`
	w := &notify.Winner{}
	err := tx.QueryRowContext(ctx, q, auctionID).Scan(&w.BidID, &w.BidderID, &w.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// flipRow performs the single atomic state transition. The status guard
// is what makes closing exactly-once no matter how many triggers race.
func flipRow(ctx context.Context, tx *sql.Tx, auctionID string, winner *notify.Winner) (bool, error) {
	var res sql.Result
	var err error
	if winner != nil {
		const q = `UPDATE auctions
		              SET status = 'CLOSED', closed_at = now(), winning_bid_id = $2,
		                  high_bid = $3, high_bidder = $4
		            WHERE id = $1 AND status = 'OPEN'`
		res, err = tx.ExecContext(ctx, q, auctionID, winner.BidID, winner.Amount, winner.BidderID)
	} else {
		const q = `UPDATE auctions
		              SET status = 'CLOSED', closed_at = now()
		            WHERE id = $1 AND status = 'OPEN'`
		res, err = tx.ExecContext(ctx, q, auctionID)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// bidPlacedAt recovers a bid's placement time from its ledger id, whose
// prefix is the admission time in unix milliseconds.
func bidPlacedAt(id string) time.Time {
	if ms, _, ok := strings.Cut(id, "-"); ok {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			return time.UnixMilli(v).UTC()
		}
	}
	return time.Now().UTC()
}
