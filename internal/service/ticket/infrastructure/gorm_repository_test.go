package infrastructure

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ticketrush/internal/service/ticket/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func newTestOrder(id, userID string, ticketID int64) *domain.Order {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	order, _ := domain.NewOrder(id, "SN-"+id, userID, &domain.Ticket{ID: ticketID, Price: 50}, now)
	return order
}

func TestOrderRepositoryCreateAndFind(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestOrder("o-1", "u-1", 1)))

	got, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.EqualValues(t, 1, got.TicketID)
	assert.EqualValues(t, 1, got.Quantity)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "SN-o-1", got.Serial)
	assert.Equal(t, 50.0, got.TotalPrice)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepositoryCreateDuplicate(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestOrder("o-1", "u-1", 1)))
	assert.Error(t, repo.Create(ctx, newTestOrder("o-1", "u-1", 1)))
}

func TestOrderRepositoryTransitionStatus(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestOrder("o-1", "u-1", 1)))

	ok, err := repo.TransitionStatus(ctx, "o-1", domain.StatusPending, domain.StatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	// 第二次条件更新已经不满足 status = pending
	ok, err = repo.TransitionStatus(ctx, "o-1", domain.StatusPending, domain.StatusPaid)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	_, err = repo.TransitionStatus(ctx, "o-1", domain.StatusCancelled, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	ok, err = repo.TransitionStatus(ctx, "missing", domain.StatusPending, domain.StatusPaid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderRepositoryConcurrentTransition(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestOrder("o-1", "u-1", 1)))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	targets := []domain.Status{domain.StatusPaid, domain.StatusCancelled}
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to domain.Status) {
			defer wg.Done()
			ok, err := repo.TransitionStatus(ctx, "o-1", domain.StatusPending, to)
			assert.NoError(t, err)
			results[i] = ok
		}(i, to)
	}
	wg.Wait()

	assert.True(t, results[0] != results[1], "exactly one writer must win")
}

func TestOrderRepositoryCountActive(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"o-1", "o-2", "o-3", "o-4"} {
		require.NoError(t, repo.Create(ctx, newTestOrder(id, "u-"+id, 1)))
	}
	require.NoError(t, repo.Create(ctx, newTestOrder("o-5", "u-5", 2)))

	_, err := repo.TransitionStatus(ctx, "o-2", domain.StatusPending, domain.StatusPaid)
	require.NoError(t, err)
	_, err = repo.TransitionStatus(ctx, "o-3", domain.StatusPending, domain.StatusCancelled)
	require.NoError(t, err)

	count, err := repo.CountActive(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestTicketRepositoryFindByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormTicketRepository(db, 15*time.Minute)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&TicketModel{
		ID: 1, Name: "concert", TotalStock: 100, CurrentStock: 100, Price: 88.8,
		StartTime: start, EndTime: start.Add(time.Hour), TimeoutMinutes: 30,
	}).Error)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "concert", got.Name)
	assert.EqualValues(t, 100, got.TotalStock)
	assert.Equal(t, 30*time.Minute, got.PaymentTimeout)
	assert.True(t, got.StartTime.Equal(start))

	_, err = repo.FindByID(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestMySQLOptionsDSN(t *testing.T) {
	dsn := MySQLOptions{Host: "db", Port: 3306, User: "root", Password: "p@ss", Database: "tickets"}.DSN()
	assert.Contains(t, dsn, "root:p@ss@tcp(db:3306)/tickets")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
