package syncbid

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func bidEntry(id, aid, bidder, amount, at string) redis.XMessage {
	return redis.XMessage{
		ID: id,
		Values: map[string]interface{}{
			"aid":    aid,
			"bidder": bidder,
			"amount": amount,
			"at":     at,
		},
	}
}

func TestPersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bids").
		WithArgs("171-1", "auc1", "u1", 1500.0, int64(1756684900)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bids").
		WithArgs("171-2", "auc1", "u2", 2200.0, int64(1756684905)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = Persist(context.Background(), db, []redis.XMessage{
		bidEntry("171-1", "auc1", "u1", "1500", "1756684900"),
		bidEntry("171-2", "auc1", "u2", "2200", "1756684905"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_ReplayedEntryIsAbsorbed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// ON CONFLICT DO NOTHING reports zero rows for the duplicate
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bids").
		WithArgs("171-1", "auc1", "u1", 1500.0, int64(1756684900)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = Persist(context.Background(), db, []redis.XMessage{
		bidEntry("171-1", "auc1", "u1", "1500", "1756684900"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_RollsBackOnWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bids").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = Persist(context.Background(), db, []redis.XMessage{
		bidEntry("171-1", "auc1", "u1", "1500", "1756684900"),
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
