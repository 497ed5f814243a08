package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// DeviceInfo is the free-form description a device sends on registration
type DeviceInfo map[string]any

// Value implements driver.Valuer so DeviceInfo is stored as JSONB
func (d DeviceInfo) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal device info")
	}
	return b, nil
}

// Scan implements sql.Scanner
func (d *DeviceInfo) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Newf("unsupported device info type %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}

// GuestUser is an unauthenticated customer identified by a device token
type GuestUser struct {
	ID              string     `json:"id" db:"id"`
	CustomerName    *string    `json:"customer_name" db:"customer_name"`
	CustomerEmail   *string    `json:"customer_email" db:"customer_email"`
	CustomerPhone   *string    `json:"customer_phone" db:"customer_phone"`
	CustomerAddress *string    `json:"customer_address" db:"customer_address"`
	DeviceInfo      DeviceInfo `json:"device_info" db:"device_info"`
	LastSeenAt      *time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Name returns the customer name or "" when the guest never filled it in
func (g *GuestUser) Name() string {
	if g.CustomerName == nil {
		return ""
	}
	return *g.CustomerName
}

// GuestUserFilter narrows a guest user listing
type GuestUserFilter struct {
	ID *string
}

// GuestProfile holds the fields a guest can alter after registration
type GuestProfile struct {
	Name    string
	Email   string
	Phone   string
	Address string
}
