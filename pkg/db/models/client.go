package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// Client is a paying customer of the delivery platform. Consolidated
// invoices are issued one per client.
type Client struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	Email         string              `gorm:"column:email;not null;unique"`
	Document      string              `gorm:"column:document;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'pix'"`
	Active        bool                `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
