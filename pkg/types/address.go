package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the delivery address snapshot stored on an order as JSON.
type Address struct {
	FirstName    string  `json:"firstName" validate:"required"`
	LastName     string  `json:"lastName" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        string  `json:"phone" validate:"required"`
	Street       string  `json:"street" validate:"required"`
	Number       string  `json:"number" validate:"required"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood string  `json:"neighborhood" validate:"required"`
	City         string  `json:"city" validate:"required"`
	State        string  `json:"state" validate:"required"`
	Country      string  `json:"country" validate:"required"`
	Zipcode      string  `json:"zipcode" validate:"required"`
}

// Missing lists the required fields that are blank.
func (a Address) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"email", a.Email},
		{"phone", a.Phone},
		{"street", a.Street},
		{"number", a.Number},
		{"neighborhood", a.Neighborhood},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"zipcode", a.Zipcode},
	}
	missing := []string{}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// FullName joins first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Value marshals the address as JSON for the jsonb column.
func (a Address) Value() (driver.Value, error) {
	if missing := a.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the JSON column back into Address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal %w", err)
	}
	return nil
}
