package model

import (
	"time"

	"gorm.io/gorm"
)

// BlockReasonTooManyFailures is the only automatic block reason.
const BlockReasonTooManyFailures = "too_many_failures"

// IPBlock is the block registry entry for a single client address. An address
// has at most one row; re-blocking refreshes the row in place instead of
// creating a duplicate. Expiry is lazy: nothing clears an expired block until
// the address is next checked.
type IPBlock struct {
	gorm.Model
	IPAddress      string     `json:"ip_address" gorm:"column:ip_address;type:varchar(45);uniqueIndex"`
	BlockedAt      time.Time  `json:"blocked_at" gorm:"column:blocked_at"`
	BlockedUntil   time.Time  `json:"blocked_until" gorm:"column:blocked_until"`
	UnblockedAt    *time.Time `json:"unblocked_at" gorm:"column:unblocked_at"`
	Reason         string     `json:"reason" gorm:"column:reason;type:varchar(64)"`
	LastIdentifier string     `json:"last_identifier" gorm:"column:last_identifier;type:varchar(255)"`
}

// IsActive reports whether the block still applies at the given instant.
func (b *IPBlock) IsActive(now time.Time) bool {
	return b.UnblockedAt == nil && b.BlockedUntil.After(now)
}
