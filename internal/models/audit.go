package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transmission represents one verify or send operation against a target
type Transmission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID  uuid.UUID `gorm:"type:uuid;not null;index" json:"target_id"`
	Operation string    `gorm:"type:varchar(20);not null;index" json:"operation"` // verify, send
	StudyUID  string    `gorm:"type:varchar(64);index" json:"study_uid,omitempty"`

	Outcome      string         `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Attempts     int            `gorm:"not null" json:"attempts"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Instances    datatypes.JSON `gorm:"type:jsonb" json:"instances,omitempty"`
	Duration     int64          `json:"duration_ms"`

	CreatedAt time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (Transmission) TableName() string {
	return "transmissions"
}

// BeforeCreate hook
func (t *Transmission) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ErrMissingField reports a missing request field
func ErrMissingField(field string) error {
	return fmt.Errorf("missing required field: %s", field)
}

// ErrInvalidField reports an invalid request field
func ErrInvalidField(field string) error {
	return fmt.Errorf("invalid value for field: %s", field)
}
