package flowguard

import (
	"context"

	"github.com/hexfold/flowguard/token"
)

// Resume establishes a session from a remember-me cookie token.
//
// Failure is silent: the caller treats the request as anonymous and clears
// the cookie, so Resume returns only a boolean. The token must carry the
// remember purpose, be within its 30-day age bound, and its digest must
// still match the account's current password hash; a password change kills
// every outstanding remember token without any revocation state.
func (e *Engine) Resume(ctx context.Context, rememberToken string) (*AuthSession, bool) {
	if e == nil || e.accounts == nil {
		return nil, false
	}

	accountID, payload, err := e.codec.Verify(
		rememberToken,
		token.PurposeRemember,
		e.config.Token.RememberTTL,
		e.clock(),
	)
	if err != nil || len(payload) != 1 {
		return nil, e.rejectResume(ctx, "", "token_invalid")
	}

	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.rejectResume(ctx, accountID, "backend_unavailable")
	}
	if account == nil {
		return nil, e.rejectResume(ctx, accountID, "account_not_found")
	}
	if account.Status != AccountActive {
		return nil, e.rejectResume(ctx, account.ID, "account_disabled")
	}
	if payload[0] != passwordDigest(account.PasswordHash) {
		return nil, e.rejectResume(ctx, account.ID, "digest_mismatch")
	}

	auth, err := e.establishSession(ctx, account)
	if err != nil {
		return nil, e.rejectResume(ctx, account.ID, "session_failed")
	}

	e.metricInc(MetricResumeSuccess)
	e.emitAudit(ctx, auditEventResume, true, account.ID, auth.SessionID, nil, nil)

	return auth, true
}

func (e *Engine) rejectResume(ctx context.Context, accountID, reason string) bool {
	e.metricInc(MetricResumeFailure)
	e.emitAudit(ctx, auditEventResume, false, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return false
}
