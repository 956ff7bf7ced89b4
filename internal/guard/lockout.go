package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// Lockout records login attempts and refuses logins for an email after too
// many recent failures.
type Lockout struct {
	db          repository.DBTX
	logger      *slog.Logger
	maxAttempts int
	window      time.Duration
}

// NewLockout creates a lockout guard with the default thresholds.
func NewLockout(db repository.DBTX, logger *slog.Logger) *Lockout {
	return &Lockout{db: db, logger: logger, maxAttempts: MaxAttempts, window: LockoutWindow}
}

// RecordAttempt inserts a login attempt row. Failures are logged, never returned.
func (l *Lockout) RecordAttempt(ctx context.Context, email, ip string, success bool) {
	_, err := l.db.Exec(ctx, `
		INSERT INTO login_attempts (email, ip_address, success)
		VALUES ($1, $2, $3)`,
		strings.ToLower(email), ip, success)
	if err != nil {
		l.logger.Warn("record login attempt failed", "error", err)
	}
}

// CheckLocked returns ErrAccountLocked if the account has >= maxAttempts failed
// logins within the lockout window. A database error fails open.
func (l *Lockout) CheckLocked(ctx context.Context, email string) error {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false
		  AND created_at > $2`,
		strings.ToLower(email), time.Now().Add(-l.window)).Scan(&count)
	if err != nil {
		l.logger.Warn("lockout check failed", "error", err)
		return nil
	}
	if count >= l.maxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
