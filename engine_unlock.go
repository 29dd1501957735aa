package flowguard

import (
	"context"

	"github.com/hexfold/flowguard/token"
)

// BeginUnlock starts the account-unlock flow: CAPTCHA, email syntax, silent
// existence check, then an unlock email. Outwardly identical whether or not
// the account exists.
func (e *Engine) BeginUnlock(ctx context.Context, captchaToken, email string) error {
	return e.beginTokenFlow(ctx, captchaToken, email, tokenFlowUnlock)
}

// CompleteUnlock verifies an unlock link, clears the account's lockout
// record, and establishes a session directly without password re-entry.
// Possession of the emailed link is the proof of control here.
func (e *Engine) CompleteUnlock(ctx context.Context, tok string) (*AuthSession, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	accountID, payload, err := e.codec.Verify(tok, token.PurposeUnlock, e.config.Token.UnlockTTL, e.clock())
	if err != nil || len(payload) != 1 {
		return nil, e.rejectUnlock(ctx, "", "token_invalid")
	}

	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventUnlockComplete, false, accountID, "", ErrBackendUnavailable, nil)
		return nil, ErrBackendUnavailable
	}
	if account == nil || account.Status != AccountActive {
		return nil, e.rejectUnlock(ctx, accountID, "account_unavailable")
	}
	if payload[0] != passwordDigest(account.PasswordHash) {
		return nil, e.rejectUnlock(ctx, account.ID, "digest_mismatch")
	}

	e.tracker.Reset(account.ID)

	auth, err := e.establishSession(ctx, account)
	if err != nil {
		e.emitAudit(ctx, auditEventUnlockComplete, false, account.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricUnlockCompleted)
	e.emitAudit(ctx, auditEventUnlockComplete, true, account.ID, auth.SessionID, nil, nil)

	return auth, nil
}

func (e *Engine) rejectUnlock(ctx context.Context, accountID, reason string) error {
	e.metricInc(MetricUnlockRejected)
	e.emitAudit(ctx, auditEventUnlockComplete, false, accountID, "", ErrUnlockRejected, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrUnlockRejected
}
