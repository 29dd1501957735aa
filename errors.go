package flowguard

import "errors"

var (
	// ErrEngineNotReady indicates the engine was not fully constructed.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrCaptchaRequired indicates the login form must present a CAPTCHA
	// before the attempt can be processed.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrCaptchaInvalid indicates the submitted CAPTCHA token failed
	// verification.
	ErrCaptchaInvalid = errors.New("captcha invalid")
	// ErrEmailInvalid indicates the submitted address is not a plausible
	// email address.
	ErrEmailInvalid = errors.New("invalid email address")
	// ErrPasswordPolicy indicates the submitted password violates the
	// configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordConfirm indicates the password and its confirmation differ.
	ErrPasswordConfirm = errors.New("password confirmation mismatch")
	// ErrAccountExists is returned by AccountStore.Create for a duplicate
	// email. Never surfaced to end users directly.
	ErrAccountExists = errors.New("account already exists")
	// ErrLoginRejected is the composite login failure: wrong password,
	// unregistered email, or locked account. Which one applied is never
	// disclosed.
	ErrLoginRejected = errors.New("login rejected: unknown email, wrong password, or account locked")
	// ErrRegistrationRejected is the composite registration failure: the
	// activation link is invalid, expired, or the account already exists.
	ErrRegistrationRejected = errors.New("registration rejected: link invalid, expired, or unavailable")
	// ErrRecoveryRejected is the composite recovery failure: the recovery
	// link is invalid, expired, or no longer matches the account.
	ErrRecoveryRejected = errors.New("recovery rejected: link invalid, expired, or unavailable")
	// ErrUnlockRejected is the composite unlock failure.
	ErrUnlockRejected = errors.New("unlock rejected: link invalid, expired, or unavailable")
	// ErrLogoutRejected indicates the logout token did not verify for the
	// presented session.
	ErrLogoutRejected = errors.New("logout rejected")
	// ErrUnauthorized indicates the access token or its session is no
	// longer valid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBackendUnavailable indicates a collaborator (account store or
	// session backend) could not serve the request.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
