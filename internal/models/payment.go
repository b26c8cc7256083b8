package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks a hosted checkout session from creation to settlement.
type PaymentStatus string

const (
	PaymentStatusOpen     PaymentStatus = "OPEN"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusExpired  PaymentStatus = "EXPIRED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Payment is the local record of a checkout session, used by fallback reconciliation.
type Payment struct {
	ID              string        `db:"id" json:"id"`
	SessionID       string        `db:"session_id" json:"session_id"`
	PaymentIntentID string        `db:"payment_intent_id" json:"payment_intent_id"`
	UserID          string        `db:"user_id" json:"user_id"`
	CatalogEntryID  string        `db:"catalog_entry_id" json:"catalog_entry_id"`
	TimeSlotID      *string       `db:"time_slot_id" json:"time_slot_id,omitempty"`
	AmountCents     int64         `db:"amount_cents" json:"amount_cents"`
	Currency        string        `db:"currency" json:"currency"`
	Status          PaymentStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Metadata keys attached to checkout sessions.
const (
	MetadataCatalogEntryID = "catalog_entry_id"
	MetadataUserID         = "user_id"
	MetadataTimeSlotID     = "time_slot_id"
	MetadataBookingNotes   = "booking_notes"
)

// CheckoutMetadata is the payload carried through the payment provider and read back on settlement.
type CheckoutMetadata struct {
	CatalogEntryID string
	UserID         string
	TimeSlotID     string
	BookingNotes   string
}

// ToMap renders the metadata for the provider, omitting empty optional keys.
func (m CheckoutMetadata) ToMap() map[string]string {
	out := map[string]string{
		MetadataCatalogEntryID: m.CatalogEntryID,
		MetadataUserID:         m.UserID,
	}
	if m.TimeSlotID != "" {
		out[MetadataTimeSlotID] = m.TimeSlotID
	}
	if m.BookingNotes != "" {
		out[MetadataBookingNotes] = m.BookingNotes
	}
	return out
}

// ParseCheckoutMetadata validates provider metadata; entry and user must be UUIDs.
func ParseCheckoutMetadata(raw map[string]string) (CheckoutMetadata, error) {
	meta := CheckoutMetadata{
		CatalogEntryID: strings.TrimSpace(raw[MetadataCatalogEntryID]),
		UserID:         strings.TrimSpace(raw[MetadataUserID]),
		TimeSlotID:     strings.TrimSpace(raw[MetadataTimeSlotID]),
		BookingNotes:   raw[MetadataBookingNotes],
	}
	if _, err := uuid.Parse(meta.CatalogEntryID); err != nil {
		return CheckoutMetadata{}, fmt.Errorf("invalid %s %q", MetadataCatalogEntryID, meta.CatalogEntryID)
	}
	if _, err := uuid.Parse(meta.UserID); err != nil {
		return CheckoutMetadata{}, fmt.Errorf("invalid %s %q", MetadataUserID, meta.UserID)
	}
	if meta.TimeSlotID != "" {
		if _, err := uuid.Parse(meta.TimeSlotID); err != nil {
			return CheckoutMetadata{}, fmt.Errorf("invalid %s %q", MetadataTimeSlotID, meta.TimeSlotID)
		}
	}
	return meta, nil
}

// CheckoutSession is the provider-neutral view of a hosted checkout session.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string // "paid", "unpaid" or "no_payment_required"
	Status          string // "open", "complete" or "expired"
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	Created         time.Time
}

// Paid reports whether the provider considers the session settled.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.PaymentStatus == "paid"
}

// PurchaseID is the stable identifier stored on enrollments; payment intent first, session id otherwise.
func (s *CheckoutSession) PurchaseID() string {
	if s == nil {
		return ""
	}
	if s.PaymentIntentID != "" {
		return s.PaymentIntentID
	}
	return s.ID
}

// CheckoutResult is returned to the client after creating a checkout session.
type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	PaymentID   string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// ReconcileResult summarises a fallback reconciliation attempt.
type ReconcileResult struct {
	Settled    bool        `json:"settled"`
	SessionID  string      `json:"session_id,omitempty"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
	Booking    *Booking    `json:"booking,omitempty"`
	Replay     bool        `json:"replay,omitempty"`
}

// WebhookEvent is a verified provider event reduced to the fields settlement needs.
type WebhookEvent struct {
	ID              string
	Type            string
	Session         *CheckoutSession
	PaymentIntentID string
	FailureMessage  string
}

// Webhook event types handled by settlement.
const (
	EventCheckoutSessionCompleted      = "checkout.session.completed"
	EventCheckoutSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired        = "checkout.session.expired"
	EventPaymentIntentSucceeded        = "payment_intent.succeeded"
	EventPaymentIntentFailed           = "payment_intent.payment_failed"
	EventChargeRefunded                = "charge.refunded"
	EventChargeDisputeCreated          = "charge.dispute.created"
)

// CheckoutRequest is what the service asks the payment provider to open.
type CheckoutRequest struct {
	ProductName       string
	Description       string
	AmountCents       int64
	Currency          string
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
}
