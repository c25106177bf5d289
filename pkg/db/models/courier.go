package models

import (
	"time"

	"github.com/google/uuid"
)

// Courier is a delivery driver paid through gateway split entries.
// Bank details are encrypted at rest by the profile service; this core only
// carries the gateway sub-account reference.
type Courier struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string     `gorm:"column:name;not null"`
	OrganizationID   *uuid.UUID `gorm:"column:organization_id;type:uuid;index"`
	GatewayAccountID string     `gorm:"column:gateway_account_id;not null"`
	Active           bool       `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Organization is the optional manager entity above a courier; its gateway
// sub-account receives the manager split when present.
type Organization struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	GatewayAccountID string    `gorm:"column:gateway_account_id;not null"`
	Active           bool      `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
