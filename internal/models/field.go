package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldType enumerates the supported data types for dynamic form fields.
type FieldType string

const (
	FieldString  FieldType = "STRING"
	FieldNumber  FieldType = "NUMBER"
	FieldDate    FieldType = "DATE"
	FieldBoolean FieldType = "BOOLEAN"
	FieldSelect  FieldType = "SELECT"
	FieldFile    FieldType = "FILE"
)

// Valid reports whether the field type is one of the supported types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldDate, FieldBoolean, FieldSelect, FieldFile:
		return true
	}
	return false
}

// StringList stores an ordered list of strings as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported string list source %T", src)
}

// ServiceField is one typed form-field definition belonging to a service's
// intake form. Keys are unique within a service; sort_order defines display
// order with creation time breaking ties.
type ServiceField struct {
	ID              string     `db:"id" json:"id"`
	ServiceID       string     `db:"service_id" json:"service_id"`
	Key             string     `db:"key" json:"key"`
	Label           string     `db:"label" json:"label"`
	DataType        FieldType  `db:"data_type" json:"data_type"`
	IsRequired      bool       `db:"is_required" json:"is_required"`
	Options         StringList `db:"options" json:"options,omitempty"`
	ValidationRules StringList `db:"validation_rules" json:"validation_rules,omitempty"`
	SortOrder       int        `db:"sort_order" json:"sort_order"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
