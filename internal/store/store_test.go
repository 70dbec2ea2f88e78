package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/meridianrx/fillengine/internal/resolver"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestFillErrorUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewFillErrorStore(testDB(t), nil)

	// First failure creates a row with fail_count 1.
	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListFill, "ORDER NOT FOUND"))

	rows, err := s.All(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].FailCount)
	require.Equal(t, "ORDER NOT FOUND", rows[0].Reason)
	require.False(t, rows[0].Ready)

	// Second failure increments and replaces the reason.
	require.NoError(t, s.MarkReady(ctx, rows[0].ID))
	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListFill, "EXPIRED PRESCRIPTION"))

	rows, err = s.All(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].FailCount)
	require.Equal(t, "EXPIRED PRESCRIPTION", rows[0].Reason)
	require.False(t, rows[0].Ready, "a new failure must clear the ready flag")
}

func TestFillErrorListsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewFillErrorStore(testDB(t), nil)

	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListFill, "r1"))
	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListOutbound, "r2"))

	rows, err := s.All(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2, "same order on different lists gets separate rows")
}

func TestFillErrorDeleteOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewFillErrorStore(testDB(t), nil)

	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListFill, "r"))
	require.NoError(t, s.Delete(ctx, "knk", "c1", "o1", ListFill))

	rows, err := s.All(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestFillErrorListReady(t *testing.T) {
	ctx := context.Background()
	s := NewFillErrorStore(testDB(t), nil)

	require.NoError(t, s.Upsert(ctx, "knk", "c1", "o1", ListFill, "r"))
	require.NoError(t, s.Upsert(ctx, "knk", "c2", "o2", ListFill, "r"))

	ready, err := s.ListReady(ctx, ListFill)
	require.NoError(t, err)
	require.Empty(t, ready, "fresh errors are not ready")

	all, err := s.All(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, s.MarkReady(ctx, all[0].ID))

	ready, err = s.ListReady(ctx, ListFill)
	require.NoError(t, err)
	require.Len(t, ready, 1)
}

func TestExpiringRxReplace(t *testing.T) {
	ctx := context.Background()
	s := NewExpiringRxStore(testDB(t), nil)

	flag := resolver.ExpiringFlag{
		CRMType: "knk", CRMID: "c1", CRMOrder: "o1", PurchaseID: "p1", RxID: 10,
	}
	require.NoError(t, s.Replace(ctx, flag))

	// Same key with a new rx id replaces, not duplicates.
	flag.RxID = 11
	require.NoError(t, s.Replace(ctx, flag))

	rows, err := s.ListAtStep(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 11, rows[0].RxID)
}

func TestCountingFlagStoreCountsReplaces(t *testing.T) {
	ctx := context.Background()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_expiring_flags_total"})
	s := CountingFlagStore{Store: NewExpiringRxStore(testDB(t), nil), Counter: counter}

	require.NoError(t, s.Replace(ctx, resolver.ExpiringFlag{
		CRMType: "knk", CRMID: "c1", CRMOrder: "o1", PurchaseID: "p1", RxID: 10,
	}))
	require.NoError(t, s.Replace(ctx, resolver.ExpiringFlag{
		CRMType: "knk", CRMID: "c1", CRMOrder: "o2", PurchaseID: "p2", RxID: 11,
	}))

	require.Equal(t, 2.0, testutil.ToFloat64(counter))
}

func TestExpiringRxAdvance(t *testing.T) {
	ctx := context.Background()
	s := NewExpiringRxStore(testDB(t), nil)

	require.NoError(t, s.Replace(ctx, resolver.ExpiringFlag{
		CRMType: "knk", CRMID: "c1", CRMOrder: "o1", PurchaseID: "p1", RxID: 10,
	}))

	rows, err := s.ListAtStep(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.Advance(ctx, rows[0].ID, 1))

	rows, err = s.ListAtStep(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = s.ListAtStep(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
