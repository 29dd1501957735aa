package flowguard

import (
	"context"

	"github.com/hexfold/flowguard/token"
)

// LogoutToken issues the short-lived anti-forgery token the caller embeds in
// its logout form, bound to the session it may end.
func (e *Engine) LogoutToken(sessionID string) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	return e.codec.Issue(token.PurposeLogout, sessionID, nil, e.clock())
}

// Logout verifies the anti-forgery token against the presented session and
// deletes the session. A token minted for a different session is rejected:
// that is the forgery the token exists to stop.
func (e *Engine) Logout(ctx context.Context, tok, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	subject, _, err := e.codec.Verify(tok, token.PurposeLogout, e.config.Token.LogoutTTL, e.clock())
	if err != nil || subject != sessionID {
		e.emitAudit(ctx, auditEventLogout, false, "", sessionID, ErrLogoutRejected, nil)
		return ErrLogoutRejected
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", sessionID, ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, "", sessionID, nil, nil)

	return nil
}
