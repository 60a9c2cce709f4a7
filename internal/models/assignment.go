package models

import (
	"time"

	"gorm.io/datatypes"
)

// CriterionDefinition describes one rubric criterion supplied by the assignment registry.
type CriterionDefinition struct {
	Name     string  `json:"name"`
	MaxScore float64 `json:"max_score"`
}

// Assignment mirrors the metadata the assignment registry supplies for an evaluated coursework item.
type Assignment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	DueDate       time.Time      `gorm:"not null" json:"due_date"`
	MaxTotalScore float64        `gorm:"not null;default:100" json:"max_total_score"`
	Criteria      datatypes.JSON `gorm:"type:json" json:"criteria"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Submissions   []Submission   `json:"submissions,omitempty"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}
