// Package notify is the boundary to notification delivery. The engine
// emits exactly one ClosingEvent per auction close; turning that into
// winner/seller messages is someone else's job.
package notify

import (
	"context"
	"time"
)

// Winner identifies the winning bid inside a ClosingEvent.
type Winner struct {
	BidID    string  `json:"bid_id"`
	BidderID string  `json:"bidder_id"`
	Amount   float64 `json:"amount"`
}

// ClosingEvent is emitted once per auction when it transitions to
// CLOSED. Winner is nil when the auction received no bids, in which case
// only the seller has anything to hear about.
type ClosingEvent struct {
	AuctionID string    `json:"auction_id"`
	Title     string    `json:"title"`
	SellerID  string    `json:"seller_id"`
	Winner    *Winner   `json:"winner,omitempty"`
	ClosedAt  time.Time `json:"closed_at"`
}

type Emitter interface {
	EmitClose(ctx context.Context, ev ClosingEvent) error
}
