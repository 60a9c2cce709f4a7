package models

import "time"

// Submission is the read-only projection of a coursework submission owned by the submission store.
// The engine only needs its identity and the submitter identity; content never flows through here.
type Submission struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AssignmentID uint       `gorm:"not null;index" json:"assignment_id"`
	SubmitterID  uint       `gorm:"not null;index" json:"submitter_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Assignment   Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}
