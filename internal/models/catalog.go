package models

import "time"

// ServiceStatus gates catalog visibility for non-admin roles.
type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "ACTIVE"
	ServiceInactive ServiceStatus = "INACTIVE"
)

// Valid reports whether the status is a known catalog status.
func (s ServiceStatus) Valid() bool {
	return s == ServiceActive || s == ServiceInactive
}

// Service represents an administrative offering a citizen can request.
type Service struct {
	ID                 string        `db:"id" json:"id"`
	InstitutionID      string        `db:"institution_id" json:"institution_id"`
	Name               string        `db:"name" json:"name"`
	Description        string        `db:"description" json:"description"`
	Fee                float64       `db:"fee" json:"fee"`
	RequiresAttachment bool          `db:"requires_attachment" json:"requires_attachment"`
	Status             ServiceStatus `db:"status" json:"status"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`

	// Institution is populated on detail reads via join.
	Institution *Institution `db:"-" json:"institution,omitempty"`
}

// ServiceFilter captures filtering criteria for the service catalog.
type ServiceFilter struct {
	InstitutionID string
	Status        *ServiceStatus
	Search        string
}
