package flowguard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	auth, err := env.engine.Login(ctx, "", "User@Example.com", "correct password", false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if auth.AccountID != account.ID || auth.AccessToken == "" {
		t.Fatalf("incomplete auth session: %+v", auth)
	}
	if auth.RememberToken != "" {
		t.Fatal("remember token issued without remember-me")
	}

	info, err := env.engine.ValidateSession(ctx, auth.AccessToken)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if info.AccountID != account.ID {
		t.Fatalf("session for wrong account: %+v", info)
	}
}

func TestLoginRememberToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	auth, err := env.engine.Login(ctx, "", "user@example.com", "correct password", true)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if auth.RememberToken == "" {
		t.Fatal("expected a remember token")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	_, wrongPassword := env.engine.Login(ctx, "", "user@example.com", "wrong password", false)
	_, unknownEmail := env.engine.Login(ctx, "", "nobody@example.com", "whatever password", false)
	_, emptyPassword := env.engine.Login(ctx, "", "user@example.com", "", false)

	for _, err := range []error{wrongPassword, unknownEmail, emptyPassword} {
		if !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("expected the composite ErrLoginRejected, got %v", err)
		}
	}
}

func TestLockoutAfterConsecutiveFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	// Six genuine failures; the clock advances past each lock window so all
	// six reach the password comparison.
	for i := 0; i < 6; i++ {
		if _, err := env.engine.Login(ctx, "", "user@example.com", "wrong password", false); !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("failure %d: expected ErrLoginRejected, got %v", i+1, err)
		}
		env.clock.Advance(33 * time.Second)
	}
	verifyCallsBefore := env.hasher.verifyCalls.Load()
	if verifyCallsBefore != 6 {
		t.Fatalf("expected 6 password comparisons, got %d", verifyCallsBefore)
	}

	// The sixth failure set count=6, so the lock window is backoff(6)=64s.
	// 33s in, even the correct password is rejected without a comparison.
	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected locked rejection, got %v", err)
	}
	if got := env.hasher.verifyCalls.Load(); got != verifyCallsBefore {
		t.Fatalf("locked login ran the password comparison: %d calls", got)
	}

	// Past the 64s window, the correct password succeeds and resets state.
	env.clock.Advance(32 * time.Second)
	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); err != nil {
		t.Fatalf("Login after the lock window failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); err != nil {
		t.Fatalf("Login after reset failed: %v", err)
	}
}

func TestLockedRejectionDoesNotExtendWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	if _, err := env.engine.Login(ctx, "", "user@example.com", "wrong password", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
	// Inside backoff(1)=2s even a correct attempt is rejected, but the
	// window must not restart.
	env.clock.Advance(time.Second)
	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected locked rejection, got %v", err)
	}
	env.clock.Advance(time.Second)
	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); err != nil {
		t.Fatalf("Login after the original window failed: %v", err)
	}
}

func TestUnknownAddressBacksOff(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Metrics.Enabled = true })
	ctx := context.Background()

	// Failures for an address with no account are keyed by the address, so
	// hammering it builds the same backoff window as a real account.
	for i := 0; i < 6; i++ {
		if _, err := env.engine.Login(ctx, "", "ghost@example.com", "guess", false); !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("failure %d: expected ErrLoginRejected, got %v", i+1, err)
		}
		env.clock.Advance(33 * time.Second)
	}

	// 33s after the sixth failure the address sits inside backoff(6)=64s.
	if _, err := env.engine.Login(ctx, "", "ghost@example.com", "guess", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected locked rejection, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 6 {
		t.Fatalf("MetricLoginFailure = %d, want 6", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricLoginLocked] != 1 {
		t.Fatalf("MetricLoginLocked = %d, want 1", snap.Counters[MetricLoginLocked])
	}
}

func TestLoginCaptchaUnderAttack(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Attack.MinSampleSize = 10
	})
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "correct password")

	// A burst of failures for distinct unknown addresses trips the global
	// detector without locking any one subject.
	for i := 0; i < 10; i++ {
		email := fmt.Sprintf("bot-%d@example.com", i)
		if _, err := env.engine.Login(ctx, "", email, "guess", false); !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("probe %d: expected ErrLoginRejected, got %v", i, err)
		}
	}
	if !env.engine.CaptchaRequired() {
		t.Fatal("expected the attack detector to require a CAPTCHA")
	}

	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}

	env.captcha.ok = false
	if _, err := env.engine.Login(ctx, "captcha-token", "user@example.com", "correct password", false); !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("expected ErrCaptchaInvalid, got %v", err)
	}

	env.captcha.ok = true
	if _, err := env.engine.Login(ctx, "captcha-token", "user@example.com", "correct password", false); err != nil {
		t.Fatalf("Login with valid CAPTCHA failed: %v", err)
	}
}

func TestLoginDisabledAccountGeneric(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.seedAccount(t, "acct-1", "user@example.com", "correct password")
	env.store.mu.Lock()
	env.store.byID[account.ID].Status = AccountDisabled
	env.store.mu.Unlock()

	if _, err := env.engine.Login(ctx, "", "user@example.com", "correct password", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected for a disabled account, got %v", err)
	}
}
