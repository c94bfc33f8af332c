package models

import "time"

// Institution represents a government body offering services.
type Institution struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	City      string    `db:"city" json:"city"`
	Address   string    `db:"address" json:"address"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InstitutionFilter captures filtering criteria for listing institutions.
type InstitutionFilter struct {
	City      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
