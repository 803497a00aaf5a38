package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quality grades accepted at registration.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
)

// Crop is a harvested lot submitted by a farmer. It is immutable once stored.
type Crop struct {
	CropID       string          `json:"crop_id"       db:"crop_id"`
	CropType     string          `json:"crop_type"     db:"crop_type"`
	Quantity     decimal.Decimal `json:"quantity"      db:"quantity"` // kg
	QualityGrade string          `json:"quality_grade" db:"quality_grade"`
	MandiID      string          `json:"mandi_id"      db:"mandi_id"`
	FarmerID     string          `json:"farmer_id"     db:"farmer_id"`
	RegisteredAt time.Time       `json:"registered_at" db:"registered_at"`
}

// RegisterRequest is the payload for registering a crop lot.
type RegisterRequest struct {
	CropType     string          `json:"crop_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	QualityGrade string          `json:"quality_grade"`
	MandiID      string          `json:"mandi_id"`
	FarmerID     string          `json:"farmer_id"`
}

// ValidGrade reports whether g is an accepted quality grade.
func ValidGrade(g string) bool {
	switch g {
	case GradeA, GradeB, GradeC:
		return true
	}
	return false
}
