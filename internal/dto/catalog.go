package dto

import "github.com/noah-isme/skillswap-api/internal/models"

// CreateCatalogEntryRequest is the payload for publishing a new class.
type CreateCatalogEntryRequest struct {
	Title           string            `json:"title" validate:"required,min=3,max=200"`
	Description     string            `json:"description" validate:"max=5000"`
	PriceCents      int64             `json:"price_cents" validate:"gte=0"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	DurationMinutes int               `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
	Difficulty      models.Difficulty `json:"difficulty" validate:"omitempty,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	IsTradeable     bool              `json:"is_tradeable"`
	IsPublished     bool              `json:"is_published"`
}

// UpdateCatalogEntryRequest carries optional field updates.
type UpdateCatalogEntryRequest struct {
	Title           *string            `json:"title" validate:"omitempty,min=3,max=200"`
	Description     *string            `json:"description" validate:"omitempty,max=5000"`
	PriceCents      *int64             `json:"price_cents" validate:"omitempty,gte=0"`
	Currency        *string            `json:"currency" validate:"omitempty,len=3"`
	DurationMinutes *int               `json:"duration_minutes" validate:"omitempty,gt=0,lte=1440"`
	Difficulty      *models.Difficulty `json:"difficulty" validate:"omitempty,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	IsTradeable     *bool              `json:"is_tradeable"`
	IsPublished     *bool              `json:"is_published"`
}

// ReviewRequest rates a class.
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}
