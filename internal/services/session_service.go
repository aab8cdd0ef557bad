package services

import (
	"time"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/fault"
)

// SessionLifecycle derives a session's temporal state and gates writes and
// freezing. Expiry is never stored; it is recomputed against "now" on every
// read, so a session merely appears expired the next time it is looked at.
type SessionLifecycle interface {
	State(session models.Session, now time.Time) models.SessionState
	IsExpired(session models.Session, now time.Time) bool
	// TooLate is the single gate used to reject further writes.
	TooLate(session models.Session, now time.Time) bool
	// EnsureWritable fails with ErrSessionFrozen or ErrSessionExpired when the
	// session can no longer accept answers.
	EnsureWritable(session models.Session, now time.Time) error
}

type sessionLifecycleImpl struct{}

// Instantiate the SessionLifecycle.
func NewSessionLifecycle() SessionLifecycle {
	return &sessionLifecycleImpl{}
}

func (l *sessionLifecycleImpl) State(session models.Session, now time.Time) models.SessionState {
	if session.Frozen {
		return models.SessionFrozen
	}
	if l.IsExpired(session, now) {
		return models.SessionExpired
	}
	if session.StartedAt == nil {
		return models.SessionCreated
	}
	return models.SessionActive
}

func (l *sessionLifecycleImpl) IsExpired(session models.Session, now time.Time) bool {
	if session.SubmitBefore != nil && now.After(*session.SubmitBefore) {
		return true
	}
	if session.StartedAt != nil {
		return now.After(session.StartedAt.Add(session.Duration()))
	}
	// A never-started session with no explicit deadline never expires.
	return false
}

func (l *sessionLifecycleImpl) TooLate(session models.Session, now time.Time) bool {
	return session.Frozen || l.IsExpired(session, now)
}

func (l *sessionLifecycleImpl) EnsureWritable(session models.Session, now time.Time) error {
	if session.Frozen {
		return fault.ErrSessionFrozen
	}
	if l.IsExpired(session, now) {
		return fault.ErrSessionExpired
	}
	return nil
}
