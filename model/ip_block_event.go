package model

import (
	"time"

	"gorm.io/gorm"
)

// Actions recorded in the block event log.
const (
	BlockActionBlock   = "block"
	BlockActionUnblock = "unblock"
)

// Unblock reasons. Automatic expiry and manual intervention are kept apart so
// the audit trail shows who (or what) lifted a block.
const (
	UnblockReasonCooldownExpired = "cooldown_expired"
	UnblockReasonManual          = "manual"
)

// IPBlockEvent is the append-only audit trail of block/unblock transitions.
// One row per transition, write-once; block and unblock views are a query
// filter on Action rather than separate tables.
type IPBlockEvent struct {
	gorm.Model
	Action         string     `json:"action" gorm:"column:action;type:varchar(16);index"`
	IPAddress      string     `json:"ip_address" gorm:"column:ip_address;type:varchar(45);index:idx_ip_block_events_ip_created,priority:1"`
	Reason         string     `json:"reason" gorm:"column:reason;type:varchar(64)"`
	BlockedUntil   *time.Time `json:"blocked_until" gorm:"column:blocked_until"`
	UserIdentifier string     `json:"user_identifier" gorm:"column:user_identifier;type:varchar(255)"`
}
