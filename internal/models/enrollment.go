package models

import "time"

// EnrollmentStatus tracks the lifecycle of a user's entitlement to a catalog entry.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusRefunded EnrollmentStatus = "REFUNDED"
	EnrollmentStatusRevoked  EnrollmentStatus = "REVOKED"
)

// GrantedVia records how an enrollment was obtained.
type GrantedVia string

const (
	GrantedViaPurchase GrantedVia = "PURCHASE"
	GrantedViaTrade    GrantedVia = "TRADE"
)

// Enrollment entitles a user to book sessions of a catalog entry.
// At most one row exists per (user, entry).
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"user_id"`
	CatalogEntryID string           `db:"catalog_entry_id" json:"catalog_entry_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	GrantedVia     GrantedVia       `db:"granted_via" json:"granted_via"`
	PurchaseID     string           `db:"purchase_id" json:"purchase_id"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// CanBookSessions is true only for ACTIVE enrollments.
func (e *Enrollment) CanBookSessions() bool {
	return e != nil && e.Status == EnrollmentStatusActive
}

// Terminal reports whether the enrollment has been revoked or refunded.
func (e *Enrollment) Terminal() bool {
	return e != nil && (e.Status == EnrollmentStatusRevoked || e.Status == EnrollmentStatusRefunded)
}

// EnrollmentWithEntry joins an enrollment with catalog details for listings.
type EnrollmentWithEntry struct {
	Enrollment
	EntryTitle string `db:"entry_title" json:"entry_title"`
	TeacherID  string `db:"teacher_id" json:"teacher_id"`
}
