package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auctionhouse/internal/ledger"
)

type AuctionDTO struct {
	ID           string    `json:"id"`
	SellerID     string    `json:"seller_id"`
	Title        string    `json:"title"`
	StartPrice   float64   `json:"start_price"`
	StartsAt     time.Time `json:"starts_at" example:"2026-08-27T16:05:05Z"`
	EndsAt       time.Time `json:"ends_at"   example:"2026-08-27T16:05:05Z"`
	Status       string    `json:"status"    example:"OPEN"`
	HighBid      float64   `json:"high_bid"`
	HighBidder   string    `json:"high_bidder,omitempty"`
	WinningBidID string    `json:"winning_bid_id,omitempty"`
}

type BidDTO struct {
	ID       string    `json:"id"`
	BidderID string    `json:"bidder_id"`
	Amount   float64   `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// BidReceipt is returned to a bidder on successful admission.
type BidReceipt struct {
	BidID      string  `json:"bid_id"`
	NewHighest float64 `json:"new_highest"`
}

type CreateAuctionParams struct {
	SellerID   string
	Title      string
	StartPrice float64
	EndsAt     time.Time
}

var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
)

// AuctionCloser performs the exactly-once OPEN -> CLOSED transition.
type AuctionCloser interface {
	Close(ctx context.Context, auctionID string) error
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, p CreateAuctionParams) (*AuctionDTO, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (*BidReceipt, error)
	CurrentHighest(ctx context.Context, auctionID string) (float64, error)
	ListBids(ctx context.Context, auctionID string) ([]BidDTO, error)
	GetAuction(ctx context.Context, id string) (*AuctionDTO, error)
	ListAuctions(ctx context.Context, status string, limit, offset int) ([]AuctionDTO, error)
	StopAuction(ctx context.Context, auctionID string) error
}

type auctionService struct {
	led    ledger.Ledger
	db     *sql.DB
	closer AuctionCloser
}

func NewAuctionService(led ledger.Ledger, db *sql.DB, closer AuctionCloser) IAuctionService {
	return &auctionService{led: led, db: db, closer: closer}
}

// CreateAuction registers the auction row and opens its ledger entry.
// Deadline and start price are immutable from here on.
func (svc *auctionService) CreateAuction(ctx context.Context, p CreateAuctionParams) (*AuctionDTO, error) {
	if p.SellerID == "" {
		return nil, fmt.Errorf("%w: missing seller_id", ErrInvalidAuction)
	}
	if p.StartPrice <= 0 {
		return nil, fmt.Errorf("%w: start price must be positive", ErrInvalidAuction)
	}
	now := time.Now().UTC()
	if !p.EndsAt.After(now) {
		return nil, fmt.Errorf("%w: ends_at must be in the future", ErrInvalidAuction)
	}

	a := ledger.Auction{
		ID:         uuid.NewString(),
		SellerID:   p.SellerID,
		Title:      p.Title,
		StartPrice: p.StartPrice,
		StartsAt:   now,
		EndsAt:     p.EndsAt.UTC(),
	}

	const ins = `
	  INSERT INTO auctions (id, seller_id, title, start_price, starts_at, ends_at,
	                        status, high_bid)
	       VALUES ($1, $2, $3, $4, $5, $6, 'OPEN', $4)`
	if _, err := svc.db.ExecContext(ctx, ins,
		a.ID, a.SellerID, a.Title, a.StartPrice, a.StartsAt, a.EndsAt); err != nil {
		return nil, err
	}

	if err := svc.led.Open(ctx, a, a.StartPrice, ""); err != nil && !errors.Is(err, ledger.ErrAlreadyOpen) {
		// Row is committed; the cache entry will be rehydrated on the
		// first bid (see placeBid) or the auction closed by the clock.
		zap.L().Warn("auction.open_cache", zap.String("id", a.ID), zap.Error(err))
	}

	return &AuctionDTO{
		ID: a.ID, SellerID: a.SellerID, Title: a.Title,
		StartPrice: a.StartPrice, StartsAt: a.StartsAt, EndsAt: a.EndsAt,
		Status: ledger.StateOpen, HighBid: a.StartPrice,
	}, nil
}

// PlaceBid admits or rejects a bid. All amount/deadline checks run
// atomically inside the ledger; this layer validates inputs and resolves
// the not-cached case against the durable store.
func (svc *auctionService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (*BidReceipt, error) {
	if auctionID == "" || bidderID == "" {
		return nil, fmt.Errorf("%w: missing auction or bidder id", ErrInvalidBid)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrInvalidBid)
	}

	adm, err := svc.led.PlaceBid(ctx, auctionID, bidderID, amount, time.Now().UTC())
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		return svc.placeBidUncached(ctx, auctionID, bidderID, amount)
	}
	if err != nil {
		return nil, err
	}
	return &BidReceipt{BidID: adm.BidID, NewHighest: adm.NewHighest}, nil
}

// placeBidUncached handles an auction the ledger does not know: either it
// never existed, it already finished, or the cache was lost (restart).
// In the last case the entry is rebuilt from the durable row, seeded with
// the mirrored high bid so the admission bar survives the cache loss, and
// the bid retried once.
func (svc *auctionService) placeBidUncached(ctx context.Context, auctionID, bidderID string, amount float64) (*BidReceipt, error) {
	const q = `SELECT seller_id, title, start_price, starts_at, ends_at,
	                  status, high_bid, coalesce(high_bidder, '')
	             FROM auctions WHERE id = $1`
	var (
		a        ledger.Auction
		st       string
		hb       float64
		hbBidder string
	)
	a.ID = auctionID
	err := svc.db.QueryRowContext(ctx, q, auctionID).Scan(
		&a.SellerID, &a.Title, &a.StartPrice, &a.StartsAt, &a.EndsAt,
		&st, &hb, &hbBidder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if st != ledger.StateOpen || !now.Before(a.EndsAt) {
		return nil, ledger.ErrAuctionClosed
	}

	if err := svc.led.Open(ctx, a, hb, hbBidder); err != nil && !errors.Is(err, ledger.ErrAlreadyOpen) {
		return nil, err
	}
	zap.L().Info("auction.cache_rehydrated", zap.String("id", auctionID))

	adm, err := svc.led.PlaceBid(ctx, auctionID, bidderID, amount, now)
	if err != nil {
		return nil, err
	}
	return &BidReceipt{BidID: adm.BidID, NewHighest: adm.NewHighest}, nil
}

// CurrentHighest reflects every committed admission: ledger cache for
// running auctions, the mirrored row for finished ones. Equals the start
// price while no bids exist.
func (svc *auctionService) CurrentHighest(ctx context.Context, auctionID string) (float64, error) {
	snap, err := svc.led.Snapshot(ctx, auctionID)
	if err == nil && snap != nil {
		return snap.HighBid, nil
	}

	var hb float64
	err = svc.db.QueryRowContext(ctx,
		`SELECT high_bid FROM auctions WHERE id = $1`, auctionID).Scan(&hb)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrAuctionNotFound
	}
	if err != nil {
		return 0, err
	}
	return hb, nil
}

// ListBids returns the auction's admitted bids, highest amount first.
func (svc *auctionService) ListBids(ctx context.Context, auctionID string) ([]BidDTO, error) {
	const q = `SELECT id, bidder_id, amount, placed_at
	             FROM bids WHERE auction_id = $1
	         ORDER BY amount DESC, placed_at ASC`
	rows, err := svc.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []BidDTO
	for rows.Next() {
		var b BidDTO
		if err := rows.Scan(&b.ID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (svc *auctionService) GetAuction(ctx context.Context, id string) (*AuctionDTO, error) {
	// Fast path: running auctions are served from the ledger cache.
	if snap, _ := svc.led.Snapshot(ctx, id); snap != nil && snap.State == ledger.StateOpen {
		return &AuctionDTO{
			ID:         id,
			SellerID:   snap.SellerID,
			Title:      snap.Title,
			StartPrice: snap.StartPrice,
			StartsAt:   snap.StartsAt,
			EndsAt:     snap.EndsAt,
			Status:     snap.State,
			HighBid:    snap.HighBid,
			HighBidder: snap.HighBidder,
		}, nil
	}

	const q = `SELECT id, seller_id, title, start_price, starts_at, ends_at,
	                  status, high_bid, coalesce(high_bidder,''), coalesce(winning_bid_id,'')
	             FROM auctions WHERE id = $1`
	dto := &AuctionDTO{}
	err := svc.db.QueryRowContext(ctx, q, id).Scan(
		&dto.ID, &dto.SellerID, &dto.Title, &dto.StartPrice,
		&dto.StartsAt, &dto.EndsAt, &dto.Status,
		&dto.HighBid, &dto.HighBidder, &dto.WinningBidID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (svc *auctionService) ListAuctions(ctx context.Context, st string, limit, offset int) ([]AuctionDTO, error) {
	if limit == 0 {
		limit = 10
	}
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT id, seller_id, title, start_price, starts_at, ends_at,
	                status, high_bid, coalesce(high_bidder,''), coalesce(winning_bid_id,'')
	           FROM auctions`
	switch st {
	case ledger.StateOpen, ledger.StateClosed:
		base += " WHERE status = $1"
		rows, err = svc.db.QueryContext(ctx, base+" ORDER BY ends_at DESC LIMIT $2 OFFSET $3",
			st, limit, offset)
	default:
		rows, err = svc.db.QueryContext(ctx, base+" ORDER BY ends_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]AuctionDTO, 0, limit)
	for rows.Next() {
		var a AuctionDTO
		if err := rows.Scan(&a.ID, &a.SellerID, &a.Title, &a.StartPrice,
			&a.StartsAt, &a.EndsAt, &a.Status,
			&a.HighBid, &a.HighBidder, &a.WinningBidID); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// StopAuction lets the seller (or an operator) close early. Same
// exactly-once path as a deadline close.
func (svc *auctionService) StopAuction(ctx context.Context, auctionID string) error {
	var st string
	err := svc.db.QueryRowContext(ctx,
		`SELECT status FROM auctions WHERE id = $1`, auctionID).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrAuctionNotFound
	}
	if err != nil {
		return err
	}
	if st == ledger.StateClosed {
		return ledger.ErrAuctionClosed
	}
	return svc.closer.Close(ctx, auctionID)
}
