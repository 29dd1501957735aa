package flowguard

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hexfold/flowguard/internal/attackwatch"
	"github.com/hexfold/flowguard/internal/lockout"
	"github.com/hexfold/flowguard/internal/session"
	"github.com/hexfold/flowguard/jwt"
	"github.com/hexfold/flowguard/token"
)

// Engine orchestrates the account-security flows. Built once per process via
// Builder and safe for concurrent use; all fields are immutable after Build.
type Engine struct {
	config   Config
	accounts AccountStore
	captcha  CaptchaVerifier
	email    EmailSender
	clock    Clock
	codec    *token.Codec
	hasher   PasswordHasher
	tracker  *lockout.Tracker
	monitor  *attackwatch.Monitor
	sessions *session.Store

	jwtManager *jwt.Manager
	audit      *auditTrail
	metrics    *Metrics

	sweepDone chan struct{}
	sweepWG   sync.WaitGroup
}

// Close stops background workers. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweepDone != nil {
		close(e.sweepDone)
		e.sweepWG.Wait()
		e.sweepDone = nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// CaptchaRequired reports whether the login form must currently present a
// CAPTCHA. Driven by the global attack detector; it never blocks by itself.
func (e *Engine) CaptchaRequired() bool {
	if e == nil || e.monitor == nil {
		return false
	}
	return e.monitor.UnderAttack(e.clock())
}

// ValidateSession parses an access token and confirms its session still
// exists. Logout and account-wide invalidation therefore take effect before
// the token's own expiry.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	if e == nil || e.jwtManager == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, claims.SID, e.clock())
	if err != nil {
		return nil, ErrUnauthorized
	}
	if sess.AccountID != claims.AID {
		return nil, ErrUnauthorized
	}

	return &SessionInfo{
		SessionID: sess.ID,
		AccountID: sess.AccountID,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// establishSession persists a fresh session record and issues its access
// token. Shared by every flow that ends authenticated.
func (e *Engine) establishSession(ctx context.Context, account *Account) (*AuthSession, error) {
	now := e.clock()
	sess := &session.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Session.Lifetime).Unix(),
	}

	if err := e.sessions.Save(ctx, sess, e.config.Session.Lifetime); err != nil {
		return nil, ErrBackendUnavailable
	}

	access, err := e.jwtManager.CreateAccess(account.ID, sess.ID, now)
	if err != nil {
		_ = e.sessions.Delete(ctx, sess.ID)
		return nil, ErrBackendUnavailable
	}

	e.metricInc(MetricSessionCreated)

	return &AuthSession{
		SessionID:   sess.ID,
		AccountID:   account.ID,
		AccessToken: access,
	}, nil
}

// sendEmail dispatches a templated message carrying the action token.
// Best-effort: failures are counted and audited, never returned.
func (e *Engine) sendEmail(ctx context.Context, address, templateID, tok string) {
	err := e.email.Send(ctx, address, templateID, map[string]string{
		EmailParamToken: tok,
	})
	if err == nil {
		return
	}
	e.metricInc(MetricEmailSendFailure)
	e.emitAudit(ctx, auditEventEmailSendFailure, false, "", "", err, func() map[string]string {
		return map[string]string{
			"template": templateID,
		}
	})
}

// passwordDigest derives the short digest embedded in remember, recover, and
// unlock tokens. Binding the token to the stored hash makes it
// self-invalidating the instant the password changes.
func passwordDigest(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}

func (e *Engine) startSweeper(interval time.Duration) {
	e.sweepDone = make(chan struct{})
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.tracker.Compact(e.clock())
			case <-e.sweepDone:
				return
			}
		}
	}()
}
