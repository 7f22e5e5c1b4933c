// Package ledger defines the hot-path store for open auctions: the
// per-auction highest-bid cache plus the append-only bid record. The
// admission rules (open state, deadline, strict increase, minimum
// increment) are enforced inside the store so that validation and append
// happen as one atomic step per auction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Auction states. OPEN transitions to CLOSED exactly once and never back.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionClosed   = errors.New("auction closed")
	ErrAlreadyOpen     = errors.New("auction already open")

	// Bid rejections. Wrapped in a Rejection carrying the amount the
	// client has to beat.
	ErrBidBelowCurrent   = errors.New("bid not above current high bid")
	ErrBidBelowIncrement = errors.New("bid below minimum increment")
)

// Rejection is returned for amount-based refusals so the caller can tell
// the bidder what the bar currently is.
type Rejection struct {
	Reason  error   // ErrBidBelowCurrent or ErrBidBelowIncrement
	Current float64 // current high bid (or start price if no bids yet)
	Minimum float64 // smallest amount that would have been admitted
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%v: current=%v minimum=%v", r.Reason, r.Current, r.Minimum)
}

func (r *Rejection) Unwrap() error { return r.Reason }

// Auction is the cache entry created when an auction opens.
type Auction struct {
	ID         string
	SellerID   string
	Title      string
	StartPrice float64
	StartsAt   time.Time
	EndsAt     time.Time
}

// Bid is a single admitted bid. ID is monotonically creation-ordered
// within an auction's ledger.
type Bid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    float64
	PlacedAt  time.Time
}

// Admission is the result of a successful PlaceBid.
type Admission struct {
	BidID      string
	NewHighest float64
}

// Snapshot is a point-in-time view of one auction's cache entry.
type Snapshot struct {
	Auction
	State      string
	HighBid    float64 // equals StartPrice while no bids exist
	HighBidder string  // empty while no bids exist
	HighBidID  string  // empty while no bids exist
}

// HasBids reports whether at least one bid was admitted.
func (s *Snapshot) HasBids() bool { return s.HighBidID != "" }

// Ledger serializes validation-then-append per auction. Implementations
// must guarantee that two concurrent PlaceBid calls against the same
// auction never both validate against the same stale high bid.
type Ledger interface {
	// Open creates the cache entry for an auction. highBid and highBidder
	// seed the admission bar: the start price and "" for a fresh auction,
	// or the durable row's values when rebuilding a lost entry, so a bid
	// below the previously admitted highest is never re-admitted. A seed
	// below the start price is raised to it.
	Open(ctx context.Context, a Auction, highBid float64, highBidder string) error

	// PlaceBid atomically validates and admits a bid. Failure modes:
	// ErrAuctionNotFound, ErrAuctionClosed, or a *Rejection wrapping
	// ErrBidBelowCurrent / ErrBidBelowIncrement. On success nothing has
	// to be rolled back; on failure nothing was written.
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64, now time.Time) (Admission, error)

	// Snapshot returns the cache entry, or nil if the auction is not in
	// the hot path (never opened here, or already finished and evicted).
	Snapshot(ctx context.Context, auctionID string) (*Snapshot, error)

	// TryLock takes the per-auction closing lock with a bounded TTL so a
	// crashed holder cannot wedge the auction. ok=false means another
	// closer holds it right now.
	TryLock(ctx context.Context, auctionID string, ttl time.Duration) (release func(), ok bool)

	// Finish flips the cache entry to CLOSED so late bids are refused at
	// the source, and schedules its eviction. Idempotent.
	Finish(ctx context.Context, auctionID string) error
}
