package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Target represents a DICOM archive (PACS) destination
type Target struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Host      string    `gorm:"type:varchar(255);not null" json:"host"`
	Port      int       `gorm:"not null" json:"port"`
	CalledAET string    `gorm:"type:varchar(16);not null" json:"called_aet"`
	MaxPDU    uint32    `gorm:"default:16384" json:"max_pdu"`
	Retries   int       `gorm:"default:2" json:"retries"`

	// Verification status tracking
	LastVerified     time.Time `json:"last_verified,omitempty"`
	LastVerifyResult string    `gorm:"type:varchar(20)" json:"last_verify_result,omitempty"`
	LastError        string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Target) TableName() string {
	return "targets"
}

// BeforeCreate hook
func (t *Target) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TargetRequest represents a request to create or update a target
type TargetRequest struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	CalledAET string `json:"called_aet"`
	MaxPDU    uint32 `json:"max_pdu,omitempty"`
	Retries   int    `json:"retries,omitempty"`
}

// Validate checks the request fields
func (r *TargetRequest) Validate() error {
	if r.Name == "" {
		return ErrMissingField("name")
	}
	if r.Host == "" {
		return ErrMissingField("host")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return ErrInvalidField("port")
	}
	if r.CalledAET == "" || len(r.CalledAET) > 16 {
		return ErrInvalidField("called_aet")
	}
	return nil
}
