// Package redisledger backs the ledger with Redis. Admission runs inside
// the auction_place_bid server-side function, so the whole
// validate-then-append step is one atomic call per auction; the Go side
// only translates error replies into typed errors.
package redisledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"auctionhouse/internal/ledger"
)

const (
	auctionKeyPrefix = "auc:"
	timerKeyPrefix   = "auc_t:"
	lockKeyPrefix    = "auc_lock:"
)

// BidStream is the append-only record every admitted bid lands on. Its
// entry IDs double as Bid identities (monotonic by construction).
const BidStream = "bids_stream"

type RedisLedger struct {
	rdc          *redis.Client
	minIncrement float64
}

var _ ledger.Ledger = (*RedisLedger)(nil)

func New(rdc *redis.Client, minIncrement float64) *RedisLedger {
	return &RedisLedger{rdc: rdc, minIncrement: minIncrement}
}

func AuctionKey(id string) string { return auctionKeyPrefix + id }
func TimerKey(id string) string   { return timerKeyPrefix + id }

func (l *RedisLedger) Open(ctx context.Context, a ledger.Auction, highBid float64, highBidder string) error {
	ttl := int64(time.Until(a.EndsAt).Seconds())
	if ttl <= 0 {
		return ledger.ErrAuctionClosed
	}
	err := l.rdc.FCall(ctx, "auction_open",
		[]string{AuctionKey(a.ID), TimerKey(a.ID)},
		a.ID,
		a.SellerID,
		a.Title,
		a.StartPrice,
		a.StartsAt.Unix(),
		a.EndsAt.Unix(),
		ttl,
		highBid,
		highBidder,
	).Err()
	if err != nil && strings.Contains(err.Error(), "already_open") {
		return ledger.ErrAlreadyOpen
	}
	return err
}

func (l *RedisLedger) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64, now time.Time) (ledger.Admission, error) {
	res := l.rdc.FCall(ctx, "auction_place_bid",
		[]string{AuctionKey(auctionID)},
		auctionID,
		bidderID,
		amount,
		now.Unix(),
		l.minIncrement,
	)
	if err := res.Err(); err != nil {
		return ledger.Admission{}, mapBidError(err)
	}
	bidID, err := res.Text()
	if err != nil {
		return ledger.Admission{}, err
	}
	return ledger.Admission{BidID: bidID, NewHighest: amount}, nil
}

func (l *RedisLedger) Snapshot(ctx context.Context, auctionID string) (*ledger.Snapshot, error) {
	data, err := l.rdc.HGetAll(ctx, AuctionKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &ledger.Snapshot{
		Auction: ledger.Auction{
			ID:         auctionID,
			SellerID:   data["sid"],
			Title:      data["tl"],
			StartPrice: atof(data["sp"]),
			StartsAt:   unixTime(data["sa"]),
			EndsAt:     unixTime(data["ea"]),
		},
		State:      data["st"],
		HighBid:    atof(data["hb"]),
		HighBidder: data["hbid"],
		HighBidID:  data["hbts"],
	}, nil
}

// TryLock takes a short-lived distributed lock so overlapping closers
// skip instead of duplicating work. The TTL bounds a crashed holder.
func (l *RedisLedger) TryLock(ctx context.Context, auctionID string, ttl time.Duration) (func(), bool) {
	key := lockKeyPrefix + auctionID
	ok, err := l.rdc.SetNX(ctx, key, 1, ttl).Result()
	if err != nil || !ok {
		return nil, false
	}
	return func() { _ = l.rdc.Del(context.WithoutCancel(ctx), key).Err() }, true
}

func (l *RedisLedger) Finish(ctx context.Context, auctionID string) error {
	return l.rdc.FCall(ctx, "auction_finish",
		[]string{AuctionKey(auctionID), TimerKey(auctionID)},
	).Err()
}

// mapBidError translates auction_place_bid error replies.
func mapBidError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "auction_missing"):
		return ledger.ErrAuctionNotFound
	case strings.Contains(msg, "auction_closed"):
		return ledger.ErrAuctionClosed
	case strings.Contains(msg, "bid_below_current"):
		return rejection(ledger.ErrBidBelowCurrent, msg)
	case strings.Contains(msg, "bid_below_increment"):
		return rejection(ledger.ErrBidBelowIncrement, msg)
	}
	return err
}

// rejection parses "... current=<x> minimum=<y>" out of an error reply.
func rejection(reason error, msg string) *ledger.Rejection {
	r := &ledger.Rejection{Reason: reason}
	for _, field := range strings.Fields(msg) {
		if v, ok := strings.CutPrefix(field, "current="); ok {
			r.Current = atof(v)
		}
		if v, ok := strings.CutPrefix(field, "minimum="); ok {
			r.Minimum = atof(v)
		}
	}
	return r
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func unixTime(s string) time.Time {
	i, _ := strconv.ParseInt(s, 10, 64)
	return time.Unix(i, 0).UTC()
}
