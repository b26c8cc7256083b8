package dto

// CheckoutRequest starts a hosted checkout for a class, optionally pre-selecting a slot.
type CheckoutRequest struct {
	TimeSlotID   string `json:"time_slot_id" validate:"omitempty,uuid"`
	BookingNotes string `json:"booking_notes" validate:"max=500"`
}

// ReconcileRequest asks the server to settle a checkout the webhook may have missed.
type ReconcileRequest struct {
	SessionID string `json:"session_id" form:"session_id" validate:"omitempty,max=255"`
}
