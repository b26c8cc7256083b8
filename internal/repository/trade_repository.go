package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const tradeColumns = `id, proposer_id, receiver_id, offered_entry_id, requested_entry_id, message, status,
        expires_at, decided_at, created_at`

// TradeRepository handles persistence of trade offers.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository constructs the repository.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create persists a new offer.
func (r *TradeRepository) Create(ctx context.Context, offer *models.TradeOffer) error {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO trade_offers (id, proposer_id, receiver_id, offered_entry_id, requested_entry_id, message, status,
        expires_at, decided_at, created_at)
        VALUES (:id, :proposer_id, :receiver_id, :offered_entry_id, :requested_entry_id, :message, :status,
        :expires_at, :decided_at, :created_at)`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, offer); err != nil {
		return fmt.Errorf("create trade offer: %w", err)
	}
	return nil
}

// FindByID returns an offer by ID.
func (r *TradeRepository) FindByID(ctx context.Context, id string) (*models.TradeOffer, error) {
	var offer models.TradeOffer
	if err := executor(ctx, r.db).GetContext(ctx, &offer, "SELECT "+tradeColumns+" FROM trade_offers WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &offer, nil
}

// LockByID returns the offer holding a row lock.
func (r *TradeRepository) LockByID(ctx context.Context, id string) (*models.TradeOffer, error) {
	var offer models.TradeOffer
	if err := executor(ctx, r.db).GetContext(ctx, &offer, "SELECT "+tradeColumns+" FROM trade_offers WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindPending returns an unexpired pending offer for the same proposer and entry pair.
func (r *TradeRepository) FindPending(ctx context.Context, proposerID, offeredID, requestedID string, now time.Time) (*models.TradeOffer, error) {
	const query = "SELECT " + tradeColumns + ` FROM trade_offers
        WHERE proposer_id = $1 AND offered_entry_id = $2 AND requested_entry_id = $3 AND status = 'PENDING' AND expires_at > $4
        ORDER BY created_at DESC LIMIT 1`
	var offer models.TradeOffer
	if err := executor(ctx, r.db).GetContext(ctx, &offer, query, proposerID, offeredID, requestedID, now); err != nil {
		return nil, err
	}
	return &offer, nil
}

// List returns offers a user sent or received.
func (r *TradeRepository) List(ctx context.Context, filter models.TradeFilter) ([]models.TradeOffer, error) {
	var conditions []string
	args := []interface{}{filter.UserID}
	switch filter.Role {
	case "sent":
		conditions = append(conditions, "proposer_id = $1")
	case "received":
		conditions = append(conditions, "receiver_id = $1")
	default:
		conditions = append(conditions, "(proposer_id = $1 OR receiver_id = $1)")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	query := "SELECT " + tradeColumns + " FROM trade_offers WHERE " + strings.Join(conditions, " AND ") + " ORDER BY created_at DESC"
	var offers []models.TradeOffer
	if err := executor(ctx, r.db).SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("list trade offers: %w", err)
	}
	return offers, nil
}

// UpdateStatus records a decision on an offer.
func (r *TradeRepository) UpdateStatus(ctx context.Context, id string, status models.TradeStatus, decidedAt time.Time) error {
	const query = `UPDATE trade_offers SET status = $2, decided_at = $3 WHERE id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id, status, decidedAt); err != nil {
		return fmt.Errorf("update trade offer: %w", err)
	}
	return nil
}

// ExpireStale marks pending offers past their deadline as EXPIRED and returns how many changed.
func (r *TradeRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE trade_offers SET status = 'EXPIRED', decided_at = $1 WHERE status = 'PENDING' AND expires_at <= $1`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire trade offers: %w", err)
	}
	return res.RowsAffected()
}
