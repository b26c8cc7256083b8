package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/models"
)

var catalogRowColumns = []string{"id", "teacher_id", "title", "description", "price_cents", "currency", "duration_minutes",
	"difficulty", "is_tradeable", "is_published", "avg_rating", "reviews_count", "created_at", "updated_at"}

func TestCatalogRepositoryListPublishedWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(catalogRowColumns).
		AddRow("entry-1", "teacher-1", "Go basics", "", int64(2500), "usd", 60, "BEGINNER", true, true, 4.5, 2, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog_entries WHERE is_published = TRUE AND teacher_id = $1 AND is_tradeable = TRUE ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("teacher-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM catalog_entries WHERE is_published = TRUE AND teacher_id = $1 AND is_tradeable = TRUE")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.List(context.Background(), models.CatalogFilter{TeacherID: "teacher-1", TradeableOnly: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(2500), entries[0].PriceCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryReferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AS open_enrollments")).
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"open_enrollments", "open_bookings", "pending_trades", "open_payments"}).AddRow(0, 1, 0, 0))

	refs, err := repo.References(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.True(t, refs.Blocking())
	assert.Equal(t, 1, refs.OpenBookings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryRefreshRating(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ROUND(AVG(rating)::numeric, 2)")).
		WithArgs("entry-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RefreshRating(context.Background(), "entry-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
