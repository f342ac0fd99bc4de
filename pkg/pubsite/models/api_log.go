package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// APILog is an append-only audit row, one per gateway request.
type APILog struct {
	ID             uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	Endpoint       string         `gorm:"size:255;not null" json:"endpoint"`
	Method         string         `gorm:"size:10;not null" json:"method"`
	RequestData    datatypes.JSON `json:"request_data"`
	ResponseStatus int            `gorm:"not null;index:idx_api_logs_window,priority:2" json:"response_status"`
	ResponseData   datatypes.JSON `json:"response_data"`
	IPAddress      string         `gorm:"size:64" json:"ip_address"`
	UserAgent      string         `gorm:"size:512" json:"user_agent"`
	APIKeyID       *uuid.UUID     `gorm:"type:varchar(36);index:idx_api_logs_window,priority:1" json:"api_key_id"`
	CreatedAt      time.Time      `gorm:"index;index:idx_api_logs_window,priority:3" json:"created_at"`
}

func (l *APILog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
