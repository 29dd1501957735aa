package flowguard

import (
	"context"

	"github.com/google/uuid"

	"github.com/hexfold/flowguard/token"
)

// BeginRegistration starts the registration flow: CAPTCHA, email syntax,
// silent existence check, then an activation email. The outward result is
// identical whether or not the address is already registered; only the audit
// trail records the difference.
func (e *Engine) BeginRegistration(ctx context.Context, captchaToken, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	if !e.captcha.Verify(ctx, captchaToken) {
		e.emitAudit(ctx, auditEventRegisterBegin, false, "", "", ErrCaptchaInvalid, nil)
		return ErrCaptchaInvalid
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		e.emitAudit(ctx, auditEventRegisterBegin, false, "", "", err, nil)
		return err
	}

	existing, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterBegin, false, "", "", ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}
	if existing != nil {
		// Outwardly indistinguishable from a fresh registration.
		e.emitAudit(ctx, auditEventRegisterBegin, false, existing.ID, "", nil, func() map[string]string {
			return map[string]string{
				"reason": "account_exists",
			}
		})
		return nil
	}

	tok, err := e.codec.Issue(token.PurposeRegister, "", []string{email}, e.clock())
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterBegin, false, "", "", err, nil)
		return ErrBackendUnavailable
	}

	e.sendEmail(ctx, email, TemplateActivation, tok)

	e.metricInc(MetricRegistrationStarted)
	e.emitAudit(ctx, auditEventRegisterBegin, true, "", "", nil, nil)

	return nil
}

// ActivateRegistration verifies an activation link and reports the address
// the password form should be rendered for. Any verification failure, and an
// account that has appeared in the meantime, collapse into the same generic
// rejection.
func (e *Engine) ActivateRegistration(ctx context.Context, tok string) (*RegistrationActivation, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	email, err := e.verifyRegisterToken(ctx, tok)
	if err != nil {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegisterActivate, false, "", "", err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventRegisterActivate, true, "", "", nil, nil)

	return &RegistrationActivation{Email: email}, nil
}

// CompleteRegistration finishes the flow: password policy, token
// re-verification, account creation, and auto-authentication. Policy
// violations are reported precisely; everything disclosure-sensitive stays
// generic.
func (e *Engine) CompleteRegistration(ctx context.Context, tok, password, confirm string) (*AuthSession, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.validatePassword(password, confirm); err != nil {
		e.emitAudit(ctx, auditEventRegisterComplete, false, "", "", err, nil)
		return nil, err
	}

	email, err := e.verifyRegisterToken(ctx, tok)
	if err != nil {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegisterComplete, false, "", "", err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterComplete, false, "", "", err, nil)
		return nil, ErrBackendUnavailable
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Status:       AccountActive,
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		// A racing registration for the same address loses here; the
		// rejection stays generic either way.
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegisterComplete, false, "", "", err, nil)
		return nil, ErrRegistrationRejected
	}

	auth, err := e.establishSession(ctx, account)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterComplete, false, account.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationCompleted)
	e.emitAudit(ctx, auditEventRegisterComplete, true, account.ID, auth.SessionID, nil, nil)

	return auth, nil
}

// verifyRegisterToken authenticates an activation token and confirms the
// address is still unregistered. All token failure causes fold into the
// generic registration rejection.
func (e *Engine) verifyRegisterToken(ctx context.Context, tok string) (string, error) {
	_, payload, err := e.codec.Verify(tok, token.PurposeRegister, e.config.Token.RegisterTTL, e.clock())
	if err != nil || len(payload) != 1 {
		return "", ErrRegistrationRejected
	}
	email := payload[0]

	existing, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		return "", ErrBackendUnavailable
	}
	if existing != nil {
		return "", ErrRegistrationRejected
	}

	return email, nil
}
