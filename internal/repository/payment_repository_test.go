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

func TestPaymentRepositoryListOpenByUserEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now()
	since := now.Add(-30 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND catalog_entry_id = $2 AND status = 'OPEN' AND created_at >= $3")).
		WithArgs("user-1", "entry-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "payment_intent_id", "user_id", "catalog_entry_id", "time_slot_id", "amount_cents", "currency", "status", "created_at", "updated_at"}).
			AddRow("pay-1", "cs_1", "", "user-1", "entry-1", nil, int64(1000), "usd", models.PaymentStatusOpen, now, now))

	payments, err := repo.ListOpenByUserEntry(context.Background(), "user-1", "entry-1", since)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "cs_1", payments[0].SessionID)
	assert.Nil(t, payments[0].TimeSlotID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMarkStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2")).
		WithArgs("cs_1", models.PaymentStatusPaid, "pi_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkStatus(context.Background(), "cs_1", models.PaymentStatusPaid, "pi_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListByPaymentIntent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE payment_intent_id = $1")).
		WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "payment_intent_id", "user_id", "catalog_entry_id", "time_slot_id", "amount_cents", "currency", "status", "created_at", "updated_at"}).
			AddRow("pay-1", "cs_1", "pi_1", "user-1", "entry-1", nil, int64(1000), "usd", models.PaymentStatusPaid, now, now))

	payments, err := repo.ListByPaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "cs_1", payments[0].SessionID)
	require.NoError(t, mock.ExpectationsWereMet())
}
