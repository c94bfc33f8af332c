package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus tracks a service request through its lifecycle.
// APPROVED and REJECTED are terminal.
type RequestStatus string

const (
	RequestDraft     RequestStatus = "DRAFT"
	RequestSubmitted RequestStatus = "SUBMITTED"
	RequestInReview  RequestStatus = "IN_REVIEW"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
)

// Valid reports whether the status is a known lifecycle status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestDraft, RequestSubmitted, RequestInReview, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// Terminal reports whether no further status transition may leave this state.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// PaymentStatus is the orthogonal payment sub-state of a request.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentNotPaid     PaymentStatus = "NOT_PAID"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentPaid        PaymentStatus = "PAID"
)

// Valid reports whether the payment status is known.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentNotRequired, PaymentNotPaid, PaymentPending, PaymentPaid:
		return true
	}
	return false
}

// FormData is the untyped key/value payload recorded on a request, keyed by
// ServiceField keys. Stored as a JSONB column.
type FormData map[string]interface{}

// Value implements driver.Valuer.
func (d FormData) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(FormData{})
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *FormData) Scan(src interface{}) error {
	if src == nil {
		*d = FormData{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return fmt.Errorf("unsupported form data source %T", src)
}

// ServiceRequest is one citizen's instance of requesting a service.
type ServiceRequest struct {
	ID            string        `db:"id" json:"id"`
	CitizenID     string        `db:"citizen_id" json:"citizen_id"`
	ServiceID     string        `db:"service_id" json:"service_id"`
	ProcessedBy   *string       `db:"processed_by" json:"processed_by,omitempty"`
	Status        RequestStatus `db:"status" json:"status"`
	CitizenNote   *string       `db:"citizen_note" json:"citizen_note,omitempty"`
	OfficerNote   *string       `db:"officer_note" json:"officer_note,omitempty"`
	Attachment    *string       `db:"attachment" json:"attachment,omitempty"`
	FormData      FormData      `db:"form_data" json:"form_data"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentDate   *time.Time    `db:"payment_date" json:"payment_date,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestFilter captures filtering criteria for the request register.
type RequestFilter struct {
	CitizenID   string
	ServiceID   string
	ProcessedBy string
	Status      *RequestStatus
	Payment     *PaymentStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
