package domain

import "time"

// ApprovedDocument is a previously validated document on record for a user
type ApprovedDocument struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"userId"`
	Category   DocumentCategory `db:"category" json:"category"`
	ApprovedAt time.Time        `db:"approved_at" json:"approvedAt"`
	ExpiresAt  *time.Time       `db:"expires_at" json:"expiresAt,omitempty"`
}
