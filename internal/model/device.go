package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ProtocolGovee = "govee"

// Device is the registry row for one cloud device.
type Device struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Protocol     string         `gorm:"index;uniqueIndex:idx_devices_protocol_external;not null" json:"protocol"`
	ExternalID   string         `gorm:"index;uniqueIndex:idx_devices_protocol_external;not null" json:"external_id"` // vendor device id
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Manufacturer string         `json:"manufacturer"`
	Model        string         `json:"model"` // vendor sku
	Description  string         `gorm:"type:text" json:"description"`
	Icon         string         `json:"icon"`
	Capabilities datatypes.JSON `json:"capabilities"`
	Inputs       datatypes.JSON `json:"inputs"`
	Online       bool           `json:"online"`
	LastSeen     time.Time      `json:"last_seen"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
