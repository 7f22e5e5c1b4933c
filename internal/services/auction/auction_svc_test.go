package auction

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"auctionhouse/internal/ledger"
	"auctionhouse/internal/ledger/memledger"
)

type stubCloser struct {
	closed []string
	err    error
}

func (s *stubCloser) Close(_ context.Context, auctionID string) error {
	s.closed = append(s.closed, auctionID)
	return s.err
}

func newTestService(t *testing.T) (IAuctionService, *memledger.MemLedger, sqlmock.Sqlmock, *stubCloser) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	led := memledger.New(500)
	cl := &stubCloser{}
	return NewAuctionService(led, db, cl), led, mock, cl
}

func openAuction(t *testing.T, led *memledger.MemLedger, id string, startPrice float64) {
	t.Helper()
	require.NoError(t, led.Open(context.Background(), ledger.Auction{
		ID:         id,
		SellerID:   "seller1",
		Title:      "antique clock",
		StartPrice: startPrice,
		StartsAt:   time.Now().UTC(),
		EndsAt:     time.Now().UTC().Add(time.Hour),
	}, startPrice, ""))
}

func TestPlaceBid_ScenarioWalkthrough(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	openAuction(t, led, "auc1", 1000)
	ctx := context.Background()

	// below the increment bar over the start price
	_, err := svc.PlaceBid(ctx, "auc1", "u1", 1400)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, err, ledger.ErrBidBelowIncrement)
	require.Equal(t, 1500.0, rej.Minimum)

	receipt, err := svc.PlaceBid(ctx, "auc1", "u1", 1500)
	require.NoError(t, err)
	require.Equal(t, 1500.0, receipt.NewHighest)
	require.NotEmpty(t, receipt.BidID)

	_, err = svc.PlaceBid(ctx, "auc1", "u2", 1500)
	require.ErrorIs(t, err, ledger.ErrBidBelowCurrent)

	receipt, err = svc.PlaceBid(ctx, "auc1", "u2", 2200)
	require.NoError(t, err)
	require.Equal(t, 2200.0, receipt.NewHighest)
}

func TestPlaceBid_InputValidation(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	openAuction(t, led, "auc1", 1000)
	ctx := context.Background()

	tests := []struct {
		name      string
		auctionID string
		bidderID  string
		amount    float64
	}{
		{"empty_auction_id", "", "u1", 1500},
		{"empty_bidder_id", "auc1", "", 1500},
		{"zero_amount", "auc1", "u1", 0},
		{"negative_amount", "auc1", "u1", -50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceBid(ctx, tc.auctionID, tc.bidderID, tc.amount)
			require.ErrorIs(t, err, ErrInvalidBid)
		})
	}
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	svc, _, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT seller_id, title, start_price").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.PlaceBid(context.Background(), "ghost", "u1", 1500)
	require.ErrorIs(t, err, ledger.ErrAuctionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_RehydratesEvictedCache(t *testing.T) {
	// The durable row is OPEN with a future deadline but the cache entry
	// is gone (restart); the bid rebuilds it and is admitted.
	svc, led, mock, _ := newTestService(t)

	starts := time.Now().UTC().Add(-time.Hour)
	ends := time.Now().UTC().Add(time.Hour)
	mock.ExpectQuery("SELECT seller_id, title, start_price").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"seller_id", "title", "start_price", "starts_at", "ends_at",
				"status", "high_bid", "high_bidder"}).
			AddRow("seller1", "antique clock", 1000.0, starts, ends, "OPEN", 1000.0, ""))

	receipt, err := svc.PlaceBid(context.Background(), "auc1", "u1", 1500)
	require.NoError(t, err)
	require.Equal(t, 1500.0, receipt.NewHighest)
	require.NoError(t, mock.ExpectationsWereMet())

	snap, err := led.Snapshot(context.Background(), "auc1")
	require.NoError(t, err)
	require.Equal(t, 1500.0, snap.HighBid)
}

func TestPlaceBid_RehydrationKeepsAdmissionBar(t *testing.T) {
	// The mirrored row already carries a 2000 high bid. Rebuilding the
	// cache entry must seed that bar: a 1500 bid stays rejected even
	// though it clears the start price.
	svc, led, mock, _ := newTestService(t)

	starts := time.Now().UTC().Add(-time.Hour)
	ends := time.Now().UTC().Add(time.Hour)
	mock.ExpectQuery("SELECT seller_id, title, start_price").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"seller_id", "title", "start_price", "starts_at", "ends_at",
				"status", "high_bid", "high_bidder"}).
			AddRow("seller1", "antique clock", 1000.0, starts, ends, "OPEN", 2000.0, "u5"))

	_, err := svc.PlaceBid(context.Background(), "auc1", "u9", 1500)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, err, ledger.ErrBidBelowCurrent)
	require.Equal(t, 2000.0, rej.Current)
	require.NoError(t, mock.ExpectationsWereMet())

	snap, err := led.Snapshot(context.Background(), "auc1")
	require.NoError(t, err)
	require.Equal(t, 2000.0, snap.HighBid)
	require.Equal(t, "u5", snap.HighBidder)

	// beating the seeded bar works without touching the database again
	receipt, err := svc.PlaceBid(context.Background(), "auc1", "u9", 2500)
	require.NoError(t, err)
	require.Equal(t, 2500.0, receipt.NewHighest)
}

func TestPlaceBid_ClosedAuctionIsTerminal(t *testing.T) {
	svc, _, mock, _ := newTestService(t)

	starts := time.Now().UTC().Add(-2 * time.Hour)
	ends := time.Now().UTC().Add(time.Hour)
	mock.ExpectQuery("SELECT seller_id, title, start_price").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"seller_id", "title", "start_price", "starts_at", "ends_at",
				"status", "high_bid", "high_bidder"}).
			AddRow("seller1", "antique clock", 1000.0, starts, ends, "CLOSED", 2200.0, "u2"))

	// any amount is refused once closed
	_, err := svc.PlaceBid(context.Background(), "auc1", "u1", 99999)
	require.ErrorIs(t, err, ledger.ErrAuctionClosed)
}

func TestCurrentHighest(t *testing.T) {
	svc, led, mock, _ := newTestService(t)
	openAuction(t, led, "auc1", 1000)
	ctx := context.Background()

	// no bids yet: the start price is the bar
	hb, err := svc.CurrentHighest(ctx, "auc1")
	require.NoError(t, err)
	require.Equal(t, 1000.0, hb)

	_, err = svc.PlaceBid(ctx, "auc1", "u1", 1500)
	require.NoError(t, err)
	hb, err = svc.CurrentHighest(ctx, "auc1")
	require.NoError(t, err)
	require.Equal(t, 1500.0, hb)

	// uncached auction falls back to the mirrored row
	mock.ExpectQuery("SELECT high_bid FROM auctions").
		WithArgs("finished").
		WillReturnRows(sqlmock.NewRows([]string{"high_bid"}).AddRow(2200.0))
	hb, err = svc.CurrentHighest(ctx, "finished")
	require.NoError(t, err)
	require.Equal(t, 2200.0, hb)

	// unknown everywhere
	mock.ExpectQuery("SELECT high_bid FROM auctions").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err = svc.CurrentHighest(ctx, "ghost")
	require.ErrorIs(t, err, ledger.ErrAuctionNotFound)
}

func TestListBids_HighestFirst(t *testing.T) {
	svc, _, mock, _ := newTestService(t)

	placed := time.Now().UTC()
	mock.ExpectQuery("SELECT id, bidder_id, amount, placed_at").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "bidder_id", "amount", "placed_at"}).
			AddRow("171-2", "u2", 2200.0, placed).
			AddRow("171-1", "u1", 1500.0, placed))

	bids, err := svc.ListBids(context.Background(), "auc1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, 2200.0, bids[0].Amount)
	require.Equal(t, 1500.0, bids[1].Amount)
}

func TestCreateAuction(t *testing.T) {
	svc, led, mock, _ := newTestService(t)
	ends := time.Now().UTC().Add(time.Hour)

	mock.ExpectExec("INSERT INTO auctions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	dto, err := svc.CreateAuction(context.Background(), CreateAuctionParams{
		SellerID:   "seller1",
		Title:      "antique clock",
		StartPrice: 1000,
		EndsAt:     ends,
	})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
	require.Equal(t, "OPEN", dto.Status)
	require.Equal(t, 1000.0, dto.HighBid)
	require.NoError(t, mock.ExpectationsWereMet())

	// ledger entry is live immediately
	snap, err := led.Snapshot(context.Background(), dto.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StateOpen, snap.State)
}

func TestCreateAuction_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	_, err := svc.CreateAuction(ctx, CreateAuctionParams{Title: "x", StartPrice: 100, EndsAt: future})
	require.ErrorIs(t, err, ErrInvalidAuction)

	_, err = svc.CreateAuction(ctx, CreateAuctionParams{SellerID: "s", StartPrice: 0, EndsAt: future})
	require.ErrorIs(t, err, ErrInvalidAuction)

	_, err = svc.CreateAuction(ctx, CreateAuctionParams{SellerID: "s", StartPrice: 100,
		EndsAt: time.Now().UTC().Add(-time.Minute)})
	require.ErrorIs(t, err, ErrInvalidAuction)
}

func TestStopAuction(t *testing.T) {
	svc, _, mock, cl := newTestService(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT status FROM auctions").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OPEN"))
	require.NoError(t, svc.StopAuction(ctx, "auc1"))
	require.Equal(t, []string{"auc1"}, cl.closed)

	mock.ExpectQuery("SELECT status FROM auctions").
		WithArgs("auc2").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CLOSED"))
	require.ErrorIs(t, svc.StopAuction(ctx, "auc2"), ledger.ErrAuctionClosed)

	mock.ExpectQuery("SELECT status FROM auctions").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	require.ErrorIs(t, svc.StopAuction(ctx, "ghost"), ledger.ErrAuctionNotFound)
}

func TestGetAuction_FastPathFromCache(t *testing.T) {
	svc, led, _, _ := newTestService(t)
	openAuction(t, led, "auc1", 1000)

	dto, err := svc.GetAuction(context.Background(), "auc1")
	require.NoError(t, err)
	require.Equal(t, "auc1", dto.ID)
	require.Equal(t, "OPEN", dto.Status)
	require.Equal(t, 1000.0, dto.HighBid)
}

func TestGetAuction_FallsBackToDurableRow(t *testing.T) {
	svc, _, mock, _ := newTestService(t)

	starts := time.Now().UTC().Add(-2 * time.Hour)
	ends := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery("SELECT id, seller_id, title, start_price").
		WithArgs("auc1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "seller_id", "title", "start_price", "starts_at", "ends_at",
				"status", "high_bid", "high_bidder", "winning_bid_id"}).
			AddRow("auc1", "seller1", "antique clock", 1000.0, starts, ends,
				"CLOSED", 2200.0, "u2", "171-2"))

	dto, err := svc.GetAuction(context.Background(), "auc1")
	require.NoError(t, err)
	require.Equal(t, "CLOSED", dto.Status)
	require.Equal(t, "171-2", dto.WinningBidID)
}
