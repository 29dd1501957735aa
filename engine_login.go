package flowguard

import (
	"context"
	"time"

	"github.com/hexfold/flowguard/token"
)

// Login authenticates an email/password pair.
//
// When the attack detector is tripped, a valid CAPTCHA token is mandatory.
// The lockout check runs BEFORE the password comparison so a locked account
// never spends a hash verification. Every disclosure-sensitive failure
// (unknown email, wrong password, locked account, disabled account) returns
// ErrLoginRejected; the precise cause goes to the audit trail only.
//
// With remember set, a successful login also carries a long-lived remember
// token for the caller to store as a cookie.
func (e *Engine) Login(ctx context.Context, captchaToken, email, password string, remember bool) (*AuthSession, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	now := e.clock()

	if e.monitor.UnderAttack(now) {
		if captchaToken == "" {
			e.metricInc(MetricCaptchaChallenged)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrCaptchaRequired, nil)
			return nil, ErrCaptchaRequired
		}
		if !e.captcha.Verify(ctx, captchaToken) {
			e.metricInc(MetricCaptchaChallenged)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrCaptchaInvalid, nil)
			return nil, ErrCaptchaInvalid
		}
	}

	email = normalizeEmail(email)

	// Unknown addresses accumulate failures under the address itself, so the
	// lock check must cover that key before account resolution.
	if e.tracker.IsLocked(email, now) {
		return nil, e.rejectLocked(ctx, "", now)
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrBackendUnavailable, nil)
		return nil, ErrBackendUnavailable
	}
	if account == nil {
		// Track under the address so hammering a nonexistent account still
		// backs off.
		return nil, e.rejectLogin(ctx, email, "", "account_not_found", now)
	}

	if e.tracker.IsLocked(account.ID, now) {
		return nil, e.rejectLocked(ctx, account.ID, now)
	}

	if account.Status != AccountActive {
		return nil, e.rejectLogin(ctx, email, account.ID, "account_disabled", now)
	}
	if password == "" {
		return nil, e.rejectLogin(ctx, email, account.ID, "empty_password", now)
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.rejectLogin(ctx, email, account.ID, "password_mismatch", now)
	}

	e.tracker.Reset(account.ID)
	e.monitor.Record(true, now)

	auth, err := e.establishSession(ctx, account)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", err, nil)
		return nil, err
	}

	if remember {
		tok, err := e.codec.Issue(
			token.PurposeRemember,
			account.ID,
			[]string{passwordDigest(account.PasswordHash)},
			now,
		)
		if err != nil {
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, auth.SessionID, err, nil)
			return nil, ErrBackendUnavailable
		}
		auth.RememberToken = tok
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, auth.SessionID, nil, nil)

	return auth, nil
}

// rejectLocked rejects an attempt that arrived inside a lock window. No
// RecordFailure here: a rejection inside the window must not extend it, or
// the backoff schedule stops being deterministic.
func (e *Engine) rejectLocked(ctx context.Context, accountID string, now time.Time) error {
	e.monitor.Record(false, now)
	e.metricInc(MetricLoginLocked)
	e.emitAudit(ctx, auditEventLoginLocked, false, accountID, "", ErrLoginRejected, func() map[string]string {
		return map[string]string{
			"reason": "locked",
		}
	})
	return ErrLoginRejected
}

// rejectLogin is the single failure path for disclosure-sensitive login
// outcomes: record the failed attempt, feed the attack detector, audit the
// precise reason, return the generic composite error.
func (e *Engine) rejectLogin(ctx context.Context, email, accountID, reason string, now time.Time) error {
	key := accountID
	if key == "" {
		key = email
	}
	e.tracker.RecordFailure(key, now)
	e.monitor.Record(false, now)
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", ErrLoginRejected, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrLoginRejected
}
