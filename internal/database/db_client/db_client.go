package db_client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(host, port, user, pass, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, pass, host, port, database,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetConnMaxIdleTime(time.Minute)
	return db, db.Ping()
}

// Migrate creates the durable side of the engine: the auctions table
// (state, highest-bid mirror, winning bid) and the append-only bids
// table whose ids come from the ledger stream.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS auctions (
		id             TEXT PRIMARY KEY,
		seller_id      TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		start_price    DOUBLE PRECISION NOT NULL,
		starts_at      TIMESTAMPTZ NOT NULL,
		ends_at        TIMESTAMPTZ NOT NULL,
		status         TEXT NOT NULL DEFAULT 'OPEN',
		high_bid       DOUBLE PRECISION NOT NULL DEFAULT 0,
		high_bidder    TEXT NOT NULL DEFAULT '',
		winning_bid_id TEXT,
		closed_at      TIMESTAMPTZ,
		event_emitted  BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS bids (
		id         TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL,
		bidder_id  TEXT NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		placed_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bids_auction_amount
		ON bids (auction_id, amount DESC);
	CREATE INDEX IF NOT EXISTS idx_auctions_status_ends_at
		ON auctions (status, ends_at);`

	_, err := db.ExecContext(ctx, schema)
	return err
}
