package flowguard

import (
	"context"
	"errors"
)

const (
	auditEventRegisterBegin    = "register_begin"
	auditEventRegisterActivate = "register_activate"
	auditEventRegisterComplete = "register_complete"
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginLocked      = "login_locked"
	auditEventResume           = "resume"
	auditEventRecoveryBegin    = "recovery_begin"
	auditEventRecoveryOpen     = "recovery_open"
	auditEventRecoveryComplete = "recovery_complete"
	auditEventUnlockBegin      = "unlock_begin"
	auditEventUnlockComplete   = "unlock_complete"
	auditEventLogout           = "logout"
	auditEventEmailSendFailure = "email_send_failure"
)

// AuditErrorCode is the normalized failure cause attached to audit events.
// This is where precision lives; flow return values stay generic.
type AuditErrorCode string

const (
	auditErrCaptchaRequired AuditErrorCode = "captcha_required"
	auditErrCaptchaInvalid  AuditErrorCode = "captcha_invalid"
	auditErrEmailInvalid    AuditErrorCode = "email_invalid"
	auditErrPasswordPolicy  AuditErrorCode = "password_policy"
	auditErrPasswordConfirm AuditErrorCode = "password_confirm"
	auditErrAccountExists   AuditErrorCode = "account_exists"
	auditErrFlowRejected    AuditErrorCode = "flow_rejected"
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrEngineNotReady  AuditErrorCode = "engine_not_ready"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCaptchaRequired):
		return auditErrCaptchaRequired
	case errors.Is(err, ErrCaptchaInvalid):
		return auditErrCaptchaInvalid
	case errors.Is(err, ErrEmailInvalid):
		return auditErrEmailInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordConfirm):
		return auditErrPasswordConfirm
	case errors.Is(err, ErrAccountExists):
		return auditErrAccountExists
	case errors.Is(err, ErrLoginRejected),
		errors.Is(err, ErrRegistrationRejected),
		errors.Is(err, ErrRecoveryRejected),
		errors.Is(err, ErrUnlockRejected),
		errors.Is(err, ErrLogoutRejected):
		return auditErrFlowRejected
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return auditErrEngineNotReady
	default:
		return auditErrInternal
	}
}
