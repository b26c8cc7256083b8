package models

import "time"

// TradeStatus tracks a skill-swap proposal.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusAccepted  TradeStatus = "ACCEPTED"
	TradeStatusDeclined  TradeStatus = "DECLINED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
	TradeStatusExpired   TradeStatus = "EXPIRED"
)

var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusPending: {TradeStatusAccepted, TradeStatusDeclined, TradeStatusCancelled, TradeStatusExpired},
}

// CanTransition reports whether moving from s to next is permitted. Only PENDING offers move.
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	for _, allowed := range tradeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TradeOffer proposes swapping access to the proposer's entry for the receiver's entry.
type TradeOffer struct {
	ID               string      `db:"id" json:"id"`
	ProposerID       string      `db:"proposer_id" json:"proposer_id"`
	ReceiverID       string      `db:"receiver_id" json:"receiver_id"`
	OfferedEntryID   string      `db:"offered_entry_id" json:"offered_entry_id"`
	RequestedEntryID string      `db:"requested_entry_id" json:"requested_entry_id"`
	Message          string      `db:"message" json:"message"`
	Status           TradeStatus `db:"status" json:"status"`
	ExpiresAt        time.Time   `db:"expires_at" json:"expires_at"`
	DecidedAt        *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the offer's acceptance window has closed at now.
func (t *TradeOffer) IsExpired(now time.Time) bool {
	return t != nil && !now.Before(t.ExpiresAt)
}

// Involves reports whether userID is either party of the offer.
func (t *TradeOffer) Involves(userID string) bool {
	return t != nil && (t.ProposerID == userID || t.ReceiverID == userID)
}

// TradeFilter narrows trade listings for a user.
type TradeFilter struct {
	UserID string
	Role   string // "sent", "received" or empty for both
	Status TradeStatus
}

// TradeOutcome describes the result of accepting an offer.
type TradeOutcome string

const (
	TradeOutcomeAccepted        TradeOutcome = "ACCEPTED"
	TradeOutcomeAlreadyEnrolled TradeOutcome = "CANCELLED_ALREADY_ENROLLED"
)
