package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid представляет ставку фрилансера на работу.
type Bid struct {
	ID           uuid.UUID `db:"id" json:"id"`
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	FreelancerID uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	Status       string    `db:"status" json:"status"`
	Budget       int64     `db:"budget" json:"budget"`
	Days         int       `db:"days" json:"days"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
