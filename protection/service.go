package protection

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/raihanakbr/lokapasar/model"
	"github.com/raihanakbr/lokapasar/util"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThrottleError is the denial outcome of a login-allowed check. It is a
// policy decision, not an application error; the HTTP layer translates it
// into a 429 with a Retry-After hint.
type ThrottleError struct {
	Reason            string
	RetryAfterSeconds int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("login throttled: %s (retry after %ds)", e.Reason, e.RetryAfterSeconds)
}

// AsThrottle unwraps a ThrottleError from err, if present.
func AsThrottle(err error) (*ThrottleError, bool) {
	var te *ThrottleError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AttemptContext carries optional investigation context for a ledger row.
type AttemptContext struct {
	Path      string
	UserAgent string
	UserID    *uint
}

// Service decides, for every authentication attempt, whether it may proceed.
// All expiry is lazy: block cooldowns are only materialized when the address
// is next checked, and window accounting filters on record timestamps.
type Service struct {
	db   *gorm.DB
	opts func() Options
	now  func() time.Time
}

// NewService builds a Service on the given DB. The options provider is
// evaluated on every check; pass OptionsFromEnv for live tuning or
// StaticOptions for pinned values.
func NewService(db *gorm.DB, opts func() Options) *Service {
	if opts == nil {
		opts = OptionsFromEnv
	}
	return &Service{db: db, opts: opts, now: time.Now}
}

// SetNowFuncForTesting replaces the service clock. Tests only.
func (s *Service) SetNowFuncForTesting(now func() time.Time) {
	s.now = now
}

// CheckLoginAllowed returns nil when the attempt may proceed to credential
// verification, a *ThrottleError when it is denied, or a storage error. The
// check order is fixed: an active address block always wins, then the
// per-identifier window, then the per-address window with block escalation.
func (s *Service) CheckLoginAllowed(address, identifier string) error {
	now := s.now()
	opts := s.opts()

	// 1) Existing address block, unblocking lazily when expired.
	var block model.IPBlock
	err := s.db.Where("ip_address = ? AND unblocked_at IS NULL", address).First(&block).Error
	switch {
	case err == nil:
		if block.BlockedUntil.After(now) {
			return &ThrottleError{
				Reason:            model.ReasonBlockedIP,
				RetryAfterSeconds: ceilSeconds(block.BlockedUntil.Sub(now)),
			}
		}
		if err := s.autoUnblock(&block, now); err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no block on record
	default:
		return err
	}

	// 2) Per-identifier failure window. Skipped entirely for empty
	// identifiers; address checks still apply.
	ident := NormalizeIdentifier(identifier)
	if ident != "" {
		window := time.Duration(opts.IdentifierWindowSeconds) * time.Second
		count, err := s.countRecentFailures("user_identifier", ident, now.Add(-window))
		if err != nil {
			return err
		}
		if count >= int64(opts.IdentifierMaxAttempts) {
			retry, err := s.remainingWindowSeconds("user_identifier", ident, now, window)
			if err != nil {
				return err
			}
			return &ThrottleError{Reason: model.ReasonRateLimitedIdentifier, RetryAfterSeconds: retry}
		}
	}

	// 3) Per-address failure window, escalating to a block at the higher
	// threshold.
	window := time.Duration(opts.IPWindowSeconds) * time.Second
	count, err := s.countRecentFailures("ip_address", address, now.Add(-window))
	if err != nil {
		return err
	}
	if count >= int64(opts.IPBlockAfterAttempts) {
		if err := s.blockAddress(address, ident, now, opts); err != nil {
			return err
		}
		return &ThrottleError{Reason: model.ReasonBlockedIP, RetryAfterSeconds: opts.IPBlockCooldownSeconds}
	}
	if count >= int64(opts.IPMaxAttempts) {
		retry, err := s.remainingWindowSeconds("ip_address", address, now, window)
		if err != nil {
			return err
		}
		return &ThrottleError{Reason: model.ReasonRateLimitedIP, RetryAfterSeconds: retry}
	}

	return nil
}

// LogRejectedAttempt appends a failed attempt to the ledger. The credential
// check path calls this with reason invalid_credentials; the HTTP layer may
// also record throttle denials under their own reason. Never both for the
// same attempt.
func (s *Service) LogRejectedAttempt(address, identifier, reason string, ctx AttemptContext) error {
	ident := NormalizeIdentifier(identifier)

	userID := ctx.UserID
	if userID == nil {
		userID = util.ResolveUserID(s.db, ident)
	}

	attempt := model.LoginAttempt{
		IPAddress:      address,
		UserIdentifier: ident,
		Succeeded:      false,
		Reason:         reason,
		Path:           truncateRunes(ctx.Path, 256),
		UserAgent:      truncateRunes(ctx.UserAgent, 256),
		UserID:         userID,
	}
	return s.db.Create(&attempt).Error
}

// countRecentFailures counts invalid-credential failures for one key column
// since the window start.
func (s *Service) countRecentFailures(column, value string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.LoginAttempt{}).
		Where(column+" = ? AND succeeded = ? AND reason = ? AND created_at >= ?",
			value, false, model.ReasonInvalidCredentials, since).
		Count(&count).Error
	return count, err
}

// remainingWindowSeconds estimates how long until the oldest counted record
// leaves the window. This is an approximation of the true sliding-window
// retry time (the record that will next expire need not be the oldest), with
// a floor of one second.
func (s *Service) remainingWindowSeconds(column, value string, now time.Time, window time.Duration) (int, error) {
	var oldest model.LoginAttempt
	err := s.db.Select("created_at").
		Where(column+" = ? AND succeeded = ? AND reason = ? AND created_at >= ?",
			value, false, model.ReasonInvalidCredentials, now.Add(-window)).
		Order("created_at").
		First(&oldest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return int(window / time.Second), nil
	}
	if err != nil {
		return 0, err
	}

	elapsed := now.Sub(oldest.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int((window - elapsed) / time.Second)
	if remaining < 1 {
		remaining = 1
	}
	return remaining, nil
}

// blockAddress creates or refreshes the block row for an address and appends
// the matching block event, as one transaction. The row lock keeps two
// concurrent over-threshold requests from double-blocking; if the row is
// already active once the lock is held, the other request won and nothing
// more is written. A first-time escalation has no row to lock, so two
// concurrent inserts can race on the unique address index; the loser retries
// once and finds the winner's row.
func (s *Service) blockAddress(address, identifier string, now time.Time, opts Options) error {
	blockedUntil := now.Add(time.Duration(opts.IPBlockCooldownSeconds) * time.Second)

	err := s.writeBlock(address, identifier, now, blockedUntil)
	if err != nil && isDuplicateKey(err) {
		err = s.writeBlock(address, identifier, now, blockedUntil)
	}
	if err != nil {
		return err
	}

	util.LogIPBlocked(address, identifier, blockedUntil)
	return nil
}

func (s *Service) writeBlock(address, identifier string, now, blockedUntil time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		lookup := tx
		// SQLite serializes writers on its own; the row lock matters on MySQL.
		if tx.Dialector.Name() == "mysql" {
			lookup = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var block model.IPBlock
		err := lookup.Where("ip_address = ?", address).First(&block).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			block = model.IPBlock{IPAddress: address}
		case err != nil:
			return err
		default:
			if block.IsActive(now) {
				return nil
			}
		}

		block.BlockedAt = now
		block.BlockedUntil = blockedUntil
		block.UnblockedAt = nil
		block.Reason = model.BlockReasonTooManyFailures
		block.LastIdentifier = identifier

		if err := tx.Save(&block).Error; err != nil {
			return err
		}

		event := model.IPBlockEvent{
			Action:         model.BlockActionBlock,
			IPAddress:      address,
			Reason:         model.BlockReasonTooManyFailures,
			BlockedUntil:   &blockedUntil,
			UserIdentifier: identifier,
		}
		return tx.Create(&event).Error
	})
}

// isDuplicateKey reports whether err is a unique-index violation. Gorm only
// translates these when TranslateError is enabled, so the raw driver messages
// of both supported dialects are matched as well.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// autoUnblock materializes the expiry of a block: sets unblocked_at and
// appends the unblock event. Idempotent from the caller's view because an
// unblocked row no longer matches the active-block lookup.
func (s *Service) autoUnblock(block *model.IPBlock, now time.Time) error {
	block.UnblockedAt = &now
	if err := s.db.Model(block).Update("unblocked_at", now).Error; err != nil {
		return err
	}

	event := model.IPBlockEvent{
		Action:         model.BlockActionUnblock,
		IPAddress:      block.IPAddress,
		Reason:         model.UnblockReasonCooldownExpired,
		UserIdentifier: block.LastIdentifier,
	}
	if err := s.db.Create(&event).Error; err != nil {
		return err
	}

	util.LogIPUnblocked(block.IPAddress, model.UnblockReasonCooldownExpired)
	return nil
}

func ceilSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

