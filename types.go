package flowguard

import (
	"context"
	"time"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountActive is the normal state; the account can authenticate.
	AccountActive AccountStatus = iota
	// AccountDisabled blocks every flow for the account without deleting it.
	AccountDisabled
)

// Account is the engine's read model of an account. The record is owned by
// the external AccountStore; the engine only reads it and updates the
// password hash.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Status       AccountStatus
}

// AccountStore is the injected account persistence collaborator.
//
// FindByEmail and FindByID return (nil, nil) for an absent account; a
// non-nil error means the backend itself failed. Create must reject a
// duplicate email with ErrAccountExists.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// CaptchaVerifier checks a CAPTCHA response token. The engine never renders
// CAPTCHA UI; it only asks whether the submitted token passed.
type CaptchaVerifier interface {
	Verify(ctx context.Context, captchaToken string) bool
}

// EmailSender delivers a templated message. Delivery is best-effort: a send
// failure is audited but never fails the flow that triggered it.
type EmailSender interface {
	Send(ctx context.Context, address, templateID string, params map[string]string) error
}

// Template identifiers passed to EmailSender.Send.
const (
	TemplateActivation = "account-activation"
	TemplateRecovery   = "password-recovery"
	TemplateUnlock     = "account-unlock"
)

// Parameter key under which the action token is passed to EmailSender.
const EmailParamToken = "token"

// Clock supplies the current time. Injected so flows and their expiry
// semantics are deterministic under test.
type Clock func() time.Time

// SecretKeyProvider supplies the signing key for action tokens.
type SecretKeyProvider interface {
	SigningKey() []byte
}

// PasswordHasher is the slow adaptive hash collaborator. The password
// package's Argon2 satisfies it and is the default.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// AuthSession is the result of a flow that established an authenticated
// session.
type AuthSession struct {
	SessionID   string
	AccountID   string
	AccessToken string
	// RememberToken is set only by Login when remember-me was requested.
	// Carried as a long-lived cookie by the caller.
	RememberToken string
}

// SessionInfo is the result of validating an access token.
type SessionInfo struct {
	SessionID string
	AccountID string
	ExpiresAt time.Time
}

// RegistrationActivation is returned when an activation link verifies; the
// caller renders the password form for this address, carrying the original
// token through to CompleteRegistration.
type RegistrationActivation struct {
	Email string
}
