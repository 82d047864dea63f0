package model

import (
	"time"

	"gorm.io/gorm"
)

// Session is a login session backed by a JWT token. The same token is also
// mirrored into Redis for fast validation when Redis is available.
type Session struct {
	gorm.Model
	UserID       uint      `json:"user_id" gorm:"index"`
	SessionToken string    `json:"session_token" gorm:"type:varchar(512);index"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address" gorm:"type:varchar(45)"`
	UserAgent    string    `json:"user_agent" gorm:"type:varchar(256)"`
}
