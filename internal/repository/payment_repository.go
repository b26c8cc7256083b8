package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const paymentColumns = `id, session_id, payment_intent_id, user_id, catalog_entry_id, time_slot_id, amount_cents, currency,
        status, created_at, updated_at`

// PaymentRepository handles persistence of checkout sessions.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a newly opened checkout session.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, session_id, payment_intent_id, user_id, catalog_entry_id, time_slot_id, amount_cents,
        currency, status, created_at, updated_at)
        VALUES (:id, :session_id, :payment_intent_id, :user_id, :catalog_entry_id, :time_slot_id, :amount_cents,
        :currency, :status, :created_at, :updated_at)
        ON CONFLICT (session_id) DO NOTHING`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// LockBySessionID returns the payment for a session holding a row lock.
func (r *PaymentRepository) LockBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := executor(ctx, r.db).GetContext(ctx, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE session_id = $1 FOR UPDATE", sessionID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListOpenByUserEntry returns OPEN sessions for a user and entry created since the given time, newest first.
func (r *PaymentRepository) ListOpenByUserEntry(ctx context.Context, userID, entryID string, since time.Time) ([]models.Payment, error) {
	const query = "SELECT " + paymentColumns + ` FROM payments
        WHERE user_id = $1 AND catalog_entry_id = $2 AND status = 'OPEN' AND created_at >= $3
        ORDER BY created_at DESC`
	var payments []models.Payment
	if err := executor(ctx, r.db).SelectContext(ctx, &payments, query, userID, entryID, since); err != nil {
		return nil, fmt.Errorf("list open payments: %w", err)
	}
	return payments, nil
}

// MarkStatus updates a session's status, keeping any known payment intent id.
func (r *PaymentRepository) MarkStatus(ctx context.Context, sessionID string, status models.PaymentStatus, paymentIntentID string) error {
	const query = `UPDATE payments SET status = $2,
        payment_intent_id = CASE WHEN $3 = '' THEN payment_intent_id ELSE $3 END,
        updated_at = NOW() WHERE session_id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, sessionID, status, paymentIntentID); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// MarkStatusByPurchase updates sessions whose payment intent or session id matches purchaseID.
func (r *PaymentRepository) MarkStatusByPurchase(ctx context.Context, purchaseID string, status models.PaymentStatus) (int64, error) {
	const query = `UPDATE payments SET status = $2, updated_at = NOW()
        WHERE payment_intent_id = $1 OR session_id = $1`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, purchaseID, status)
	if err != nil {
		return 0, fmt.Errorf("update payment by purchase: %w", err)
	}
	return res.RowsAffected()
}

// ListByPaymentIntent returns the sessions paid through the given payment intent.
func (r *PaymentRepository) ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := executor(ctx, r.db).SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE payment_intent_id = $1", paymentIntentID); err != nil {
		return nil, fmt.Errorf("list payments by intent: %w", err)
	}
	return payments, nil
}
