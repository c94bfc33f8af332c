package models

// StatusCount pairs a request status with its total.
type StatusCount struct {
	Status RequestStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}

// PaymentCount pairs a payment status with its total.
type PaymentCount struct {
	Status PaymentStatus `db:"payment_status" json:"payment_status"`
	Count  int           `db:"count" json:"count"`
}

// ServiceCount pairs a service with its request total.
type ServiceCount struct {
	ServiceID   string `db:"service_id" json:"service_id"`
	ServiceName string `db:"service_name" json:"service_name"`
	Count       int    `db:"count" json:"count"`
}

// RoleCount pairs a user role with its total.
type RoleCount struct {
	Role  UserRole `db:"role" json:"role"`
	Count int      `db:"count" json:"count"`
}

// PortalStats is the aggregate statistics payload served at /stats.
type PortalStats struct {
	TotalRequests     int            `json:"total_requests"`
	RequestsByStatus  []StatusCount  `json:"requests_by_status"`
	RequestsByPayment []PaymentCount `json:"requests_by_payment"`
	RequestsByService []ServiceCount `json:"requests_by_service"`
	TotalInstitutions int            `json:"total_institutions"`
	TotalServices     int            `json:"total_services"`
	UsersByRole       []RoleCount    `json:"users_by_role"`
}
