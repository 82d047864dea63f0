package model

import "gorm.io/gorm"

// Reasons recorded on a login attempt. invalid_credentials is written by the
// credential-check path; the throttle reasons are written by the HTTP layer
// when a check was denied.
const (
	ReasonInvalidCredentials    = "invalid_credentials"
	ReasonRateLimitedIP         = "rate_limited_ip"
	ReasonRateLimitedIdentifier = "rate_limited_identifier"
	ReasonBlockedIP             = "blocked_ip"
	ReasonMissingIdentifier     = "missing_identifier"
)

// LoginAttempt is one row of the attempt ledger: an authentication attempt
// that did not succeed cleanly. Rows are append-only and never store secret
// material. CreatedAt (from gorm.Model) is the attempt timestamp.
type LoginAttempt struct {
	gorm.Model
	IPAddress      string `json:"ip_address" gorm:"column:ip_address;type:varchar(45);index:idx_login_attempts_ip_created,priority:1"`
	UserIdentifier string `json:"user_identifier" gorm:"column:user_identifier;type:varchar(255);index:idx_login_attempts_ident_created,priority:1"`
	Succeeded      bool   `json:"succeeded" gorm:"column:succeeded"`
	Reason         string `json:"reason" gorm:"column:reason;type:varchar(64);index"`

	// Optional context for investigations.
	Path      string `json:"path" gorm:"column:path;type:varchar(256)"`
	UserAgent string `json:"user_agent" gorm:"column:user_agent;type:varchar(256)"`
	UserID    *uint  `json:"user_id" gorm:"column:user_id;index"`
}
