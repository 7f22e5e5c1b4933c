// Package memledger is the in-process Ledger: every auction gets its own
// mutex spanning the validate-then-append critical section, so admission
// is serialized per auction without any cross-auction lock.
package memledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auctionhouse/internal/ledger"
)

type entry struct {
	mu sync.Mutex

	auction ledger.Auction
	state   string

	highBid    float64
	highBidder string
	highBidID  string

	bids []ledger.Bid

	closing bool // per-auction closing lock
}

// MemLedger implements ledger.Ledger entirely in memory.
type MemLedger struct {
	minIncrement float64

	mu      sync.RWMutex
	entries map[string]*entry

	seqMu sync.Mutex
	seq   uint64
}

var _ ledger.Ledger = (*MemLedger)(nil)

func New(minIncrement float64) *MemLedger {
	return &MemLedger{
		minIncrement: minIncrement,
		entries:      make(map[string]*entry),
	}
}

func (m *MemLedger) nextBidID() string {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.seq++
	// zero-padded so lexicographic order matches creation order
	return fmt.Sprintf("%d-%06d", time.Now().UnixMilli(), m.seq)
}

func (m *MemLedger) get(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[id]
}

func (m *MemLedger) Open(_ context.Context, a ledger.Auction, highBid float64, highBidder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[a.ID]; ok {
		return ledger.ErrAlreadyOpen
	}
	if highBid < a.StartPrice {
		highBid = a.StartPrice
	}
	m.entries[a.ID] = &entry{
		auction:    a,
		state:      ledger.StateOpen,
		highBid:    highBid,
		highBidder: highBidder,
	}
	return nil
}

// PlaceBid holds the auction's mutex from the high-bid read through the
// append, which rules out two bids validating against the same stale value.
func (m *MemLedger) PlaceBid(_ context.Context, auctionID, bidderID string, amount float64, now time.Time) (ledger.Admission, error) {
	e := m.get(auctionID)
	if e == nil {
		return ledger.Admission{}, ledger.ErrAuctionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != ledger.StateOpen || !now.Before(e.auction.EndsAt) {
		return ledger.Admission{}, ledger.ErrAuctionClosed
	}
	if amount <= e.highBid {
		return ledger.Admission{}, &ledger.Rejection{
			Reason:  ledger.ErrBidBelowCurrent,
			Current: e.highBid,
			Minimum: e.highBid + m.minIncrement,
		}
	}
	if amount-e.highBid < m.minIncrement {
		return ledger.Admission{}, &ledger.Rejection{
			Reason:  ledger.ErrBidBelowIncrement,
			Current: e.highBid,
			Minimum: e.highBid + m.minIncrement,
		}
	}

	bid := ledger.Bid{
		ID:        m.nextBidID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		PlacedAt:  now,
	}
	e.bids = append(e.bids, bid)
	e.highBid = amount
	e.highBidder = bidderID
	e.highBidID = bid.ID

	return ledger.Admission{BidID: bid.ID, NewHighest: amount}, nil
}

func (m *MemLedger) Snapshot(_ context.Context, auctionID string) (*ledger.Snapshot, error) {
	e := m.get(auctionID)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return &ledger.Snapshot{
		Auction:    e.auction,
		State:      e.state,
		HighBid:    e.highBid,
		HighBidder: e.highBidder,
		HighBidID:  e.highBidID,
	}, nil
}

func (m *MemLedger) TryLock(_ context.Context, auctionID string, _ time.Duration) (func(), bool) {
	e := m.get(auctionID)
	if e == nil {
		return func() {}, true // nothing cached, nothing to contend on
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return nil, false
	}
	e.closing = true
	return func() {
		e.mu.Lock()
		e.closing = false
		e.mu.Unlock()
	}, true
}

func (m *MemLedger) Finish(_ context.Context, auctionID string) error {
	e := m.get(auctionID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	e.state = ledger.StateClosed
	e.mu.Unlock()
	return nil
}

// Bids returns the admitted bids in admission order.
func (m *MemLedger) Bids(auctionID string) []ledger.Bid {
	e := m.get(auctionID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ledger.Bid(nil), e.bids...)
}
