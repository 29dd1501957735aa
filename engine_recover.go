package flowguard

import (
	"context"

	"github.com/hexfold/flowguard/token"
)

// BeginRecovery starts password recovery: CAPTCHA, email syntax, silent
// existence check, then a recovery email. The outward result never reveals
// whether the address is registered.
func (e *Engine) BeginRecovery(ctx context.Context, captchaToken, email string) error {
	return e.beginTokenFlow(ctx, captchaToken, email, tokenFlowRecovery)
}

// OpenRecovery verifies a recovery link before the new-password form is
// rendered. Invalid, expired, and stale-digest tokens all produce the same
// generic rejection.
func (e *Engine) OpenRecovery(ctx context.Context, tok string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	_, err := e.verifyRecoveryToken(ctx, tok)
	if err != nil {
		e.metricInc(MetricRecoveryRejected)
		e.emitAudit(ctx, auditEventRecoveryOpen, false, "", "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventRecoveryOpen, true, "", "", nil, nil)
	return nil
}

// CompleteRecovery sets a new password and authenticates. The token embeds a
// digest of the hash it was minted against, so completing recovery once
// invalidates the link for any replay: the second attempt fails the digest
// check automatically.
//
// Changing the password also deletes every existing session of the account
// and clears its lockout record.
func (e *Engine) CompleteRecovery(ctx context.Context, tok, password, confirm string) (*AuthSession, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.validatePassword(password, confirm); err != nil {
		e.emitAudit(ctx, auditEventRecoveryComplete, false, "", "", err, nil)
		return nil, err
	}

	account, err := e.verifyRecoveryToken(ctx, tok)
	if err != nil {
		e.metricInc(MetricRecoveryRejected)
		e.emitAudit(ctx, auditEventRecoveryComplete, false, "", "", err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.emitAudit(ctx, auditEventRecoveryComplete, false, account.ID, "", err, nil)
		return nil, ErrBackendUnavailable
	}

	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		e.emitAudit(ctx, auditEventRecoveryComplete, false, account.ID, "", ErrBackendUnavailable, nil)
		return nil, ErrBackendUnavailable
	}
	account.PasswordHash = hash

	// Outstanding sessions die with the old credential.
	if err := e.sessions.DeleteAllForAccount(ctx, account.ID); err != nil {
		e.emitAudit(ctx, auditEventRecoveryComplete, false, account.ID, "", ErrBackendUnavailable, nil)
		return nil, ErrBackendUnavailable
	}
	e.metricInc(MetricSessionInvalidated)

	e.tracker.Reset(account.ID)

	auth, err := e.establishSession(ctx, account)
	if err != nil {
		e.emitAudit(ctx, auditEventRecoveryComplete, false, account.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRecoveryCompleted)
	e.emitAudit(ctx, auditEventRecoveryComplete, true, account.ID, auth.SessionID, nil, nil)

	return auth, nil
}

// verifyRecoveryToken authenticates a recovery token and binds it to the
// account's current password hash.
func (e *Engine) verifyRecoveryToken(ctx context.Context, tok string) (*Account, error) {
	accountID, payload, err := e.codec.Verify(tok, token.PurposeRecover, e.config.Token.RecoverTTL, e.clock())
	if err != nil || len(payload) != 1 {
		return nil, ErrRecoveryRejected
	}

	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if account == nil || account.Status != AccountActive {
		return nil, ErrRecoveryRejected
	}
	if payload[0] != passwordDigest(account.PasswordHash) {
		return nil, ErrRecoveryRejected
	}

	return account, nil
}

type tokenFlow uint8

const (
	tokenFlowRecovery tokenFlow = iota
	tokenFlowUnlock
)

// beginTokenFlow is the shared first step of recovery and unlock: CAPTCHA,
// email validation, silent existence check, then a purpose-scoped token
// emailed to the account. The outward result is identical whether or not the
// account exists.
func (e *Engine) beginTokenFlow(ctx context.Context, captchaToken, email string, flow tokenFlow) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	eventType := auditEventRecoveryBegin
	purpose := token.PurposeRecover
	templateID := TemplateRecovery
	startedMetric := MetricRecoveryStarted
	if flow == tokenFlowUnlock {
		eventType = auditEventUnlockBegin
		purpose = token.PurposeUnlock
		templateID = TemplateUnlock
		startedMetric = MetricUnlockStarted
	}

	if !e.captcha.Verify(ctx, captchaToken) {
		e.emitAudit(ctx, eventType, false, "", "", ErrCaptchaInvalid, nil)
		return ErrCaptchaInvalid
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		e.emitAudit(ctx, eventType, false, "", "", err, nil)
		return err
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, eventType, false, "", "", ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}
	if account == nil || account.Status != AccountActive {
		// Outwardly indistinguishable from a sent email.
		e.emitAudit(ctx, eventType, false, "", "", nil, func() map[string]string {
			return map[string]string{
				"reason": "account_unavailable",
			}
		})
		return nil
	}

	tok, err := e.codec.Issue(
		purpose,
		account.ID,
		[]string{passwordDigest(account.PasswordHash)},
		e.clock(),
	)
	if err != nil {
		e.emitAudit(ctx, eventType, false, account.ID, "", err, nil)
		return ErrBackendUnavailable
	}

	e.sendEmail(ctx, account.Email, templateID, tok)

	e.metricInc(startedMetric)
	e.emitAudit(ctx, eventType, true, account.ID, "", nil, nil)

	return nil
}
