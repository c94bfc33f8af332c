// Package formdata bridges typed service field definitions and the untyped
// form_data payload stored on a request. Each field type carries its own
// normalisation rule; validation is fail-fast and names the first offending
// field by label.
package formdata

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

// BuildPayload maps each field's key to a normalised value. Keys present in
// uiValues but absent from the schema pass through unchanged so payloads stay
// forward-compatible with schema drift.
func BuildPayload(fields []models.ServiceField, uiValues map[string]interface{}) models.FormData {
	payload := models.FormData{}
	known := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		known[field.Key] = struct{}{}
		payload[field.Key] = normalize(field.DataType, uiValues[field.Key])
	}

	for key, value := range uiValues {
		if _, ok := known[key]; !ok {
			payload[key] = value
		}
	}

	return payload
}

// ValidateRequired checks required fields in ascending sort order and stops at
// the first missing one. A value counts as missing when it is nil, an empty
// string, or NaN.
func ValidateRequired(fields []models.ServiceField, payload models.FormData) error {
	for _, field := range SortFields(fields) {
		if !field.IsRequired {
			continue
		}
		if missing(payload[field.Key]) {
			return appErrors.Validationf("field %q is required", field.Label)
		}
	}
	return nil
}

// RenderedField is one review-view row derived from the schema and payload.
type RenderedField struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Required bool        `json:"required"`
	Value    interface{} `json:"value"`
}

// Render produces ordered rows for every schema field, then appends payload
// keys not covered by the schema with a derived label. Composite values are
// preserved verbatim for display.
func Render(fields []models.ServiceField, formData models.FormData) []RenderedField {
	rows := make([]RenderedField, 0, len(fields)+len(formData))
	seen := make(map[string]struct{}, len(fields))

	for _, field := range SortFields(fields) {
		if field.Key == "" {
			continue
		}
		seen[field.Key] = struct{}{}
		rows = append(rows, RenderedField{
			Key:      field.Key,
			Label:    field.Label,
			Required: field.IsRequired,
			Value:    formData[field.Key],
		})
	}

	extras := make([]string, 0)
	for key := range formData {
		if _, ok := seen[key]; !ok {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		rows = append(rows, RenderedField{
			Key:   key,
			Label: PrettifyKey(key),
			Value: formData[key],
		})
	}

	return rows
}

// DisplayValue coerces a rendered value into display text. Booleans render as
// a tri-state label (Yes/No/-), composites as indented JSON, everything else
// via string coercion.
func DisplayValue(value interface{}, dataType models.FieldType) string {
	if missing(value) {
		return "-"
	}

	if dataType == models.FieldBoolean {
		if b, ok := value.(bool); ok {
			if b {
				return "Yes"
			}
			return "No"
		}
		if s, ok := value.(string); ok {
			if strings.EqualFold(s, "true") {
				return "Yes"
			}
			return "No"
		}
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return fmt.Sprint(value)
}

// SortFields returns a copy of fields ordered by sort_order ascending with
// ties broken by creation time, then original position.
func SortFields(fields []models.ServiceField) []models.ServiceField {
	sorted := make([]models.ServiceField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// PrettifyKey derives a display label from a machine key:
// "delivery_method" becomes "Delivery method".
func PrettifyKey(key string) string {
	cleaned := strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
	if cleaned == "" {
		return "-"
	}
	return strings.ToUpper(cleaned[:1]) + cleaned[1:]
}

func normalize(dataType models.FieldType, value interface{}) interface{} {
	if value == nil {
		if dataType == models.FieldBoolean {
			return false
		}
		return nil
	}

	switch dataType {
	case models.FieldDate:
		return normalizeDate(value)
	case models.FieldNumber:
		return normalizeNumber(value)
	case models.FieldBoolean:
		return normalizeBool(value)
	default:
		return normalizeString(value)
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func normalizeDate(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case string:
		if v == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02")
			}
		}
		// Unparseable strings stay intact; byte-truncating them would cut
		// multi-byte runes in half.
		return v
	}
	return normalizeString(value)
}

func normalizeNumber(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return f
	case string:
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	return nil
}

func normalizeBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	}
	return false
}

func normalizeString(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}, []interface{}:
		// Composite values stay verbatim; display handles them.
		return v
	}
	return fmt.Sprint(value)
}

func missing(value interface{}) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case float64:
		return math.IsNaN(v)
	}
	return false
}
