package flowguard

import (
	"net/mail"
	"strings"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return ErrEmailInvalid
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		// Display names and comments are not acceptable in a bare address
		// field.
		return ErrEmailInvalid
	}
	return nil
}

func (e *Engine) validatePassword(password, confirm string) error {
	if len(password) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	if password != confirm {
		return ErrPasswordConfirm
	}
	return nil
}
