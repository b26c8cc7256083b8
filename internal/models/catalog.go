package models

import "time"

// Difficulty grades a catalog entry.
type Difficulty string

// Supported difficulties.
const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
)

// CatalogEntry is a teaching offering ("class") published by one teacher.
type CatalogEntry struct {
	ID              string     `db:"id" json:"id"`
	TeacherID       string     `db:"teacher_id" json:"teacher_id"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	PriceCents      int64      `db:"price_cents" json:"price_cents"`
	Currency        string     `db:"currency" json:"currency"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Difficulty      Difficulty `db:"difficulty" json:"difficulty"`
	IsTradeable     bool       `db:"is_tradeable" json:"is_tradeable"`
	IsPublished     bool       `db:"is_published" json:"is_published"`
	AvgRating       float64    `db:"avg_rating" json:"avg_rating"`
	ReviewsCount    int        `db:"reviews_count" json:"reviews_count"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// OwnedBy reports whether userID teaches the entry.
func (c *CatalogEntry) OwnedBy(userID string) bool {
	return c != nil && userID != "" && c.TeacherID == userID
}

// Tradeable reports whether the entry may currently be swapped in a trade.
func (c *CatalogEntry) Tradeable() bool {
	return c != nil && c.IsPublished && c.IsTradeable
}

// CatalogFilter narrows catalog listings.
type CatalogFilter struct {
	TeacherID     string
	Difficulty    Difficulty
	TradeableOnly bool
	Search        string
	IncludeDrafts bool
	Page          int
	PageSize      int
}

// CatalogReferences counts live rows pointing at an entry; any non-zero value blocks deletion.
type CatalogReferences struct {
	OpenEnrollments int `db:"open_enrollments"`
	OpenBookings    int `db:"open_bookings"`
	PendingTrades   int `db:"pending_trades"`
	OpenPayments    int `db:"open_payments"`
}

// Blocking reports whether any live reference exists.
func (r CatalogReferences) Blocking() bool {
	return r.OpenEnrollments+r.OpenBookings+r.PendingTrades+r.OpenPayments > 0
}

// Review is a single rating left on a catalog entry.
type Review struct {
	ID             string    `db:"id" json:"id"`
	CatalogEntryID string    `db:"catalog_entry_id" json:"catalog_entry_id"`
	ReviewerID     string    `db:"reviewer_id" json:"reviewer_id"`
	Rating         int       `db:"rating" json:"rating"`
	Comment        string    `db:"comment" json:"comment"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
