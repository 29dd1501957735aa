package flowguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecoveryEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.seedAccount(t, "acct-1", "user@example.com", "old password!")

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "user@example.com"); err != nil {
		t.Fatalf("BeginRecovery failed: %v", err)
	}
	sent := env.email.last(t)
	if sent.Address != "user@example.com" || sent.TemplateID != TemplateRecovery {
		t.Fatalf("unexpected recovery email: %+v", sent)
	}
	tok := env.lastToken(t)

	env.clock.Advance(30 * time.Minute)

	if err := env.engine.OpenRecovery(ctx, tok); err != nil {
		t.Fatalf("OpenRecovery failed: %v", err)
	}

	auth, err := env.engine.CompleteRecovery(ctx, tok, "brand new password", "brand new password")
	if err != nil {
		t.Fatalf("CompleteRecovery failed: %v", err)
	}
	if auth.AccountID != account.ID || auth.AccessToken == "" {
		t.Fatalf("incomplete auth session: %+v", auth)
	}

	if _, err := env.engine.Login(ctx, "", "user@example.com", "brand new password", false); err != nil {
		t.Fatalf("Login with the new password failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "", "user@example.com", "old password!", false); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestRecoveryTokenDiesOnCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "old password!")

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "user@example.com"); err != nil {
		t.Fatalf("BeginRecovery failed: %v", err)
	}
	tok := env.lastToken(t)

	if _, err := env.engine.CompleteRecovery(ctx, tok, "brand new password", "brand new password"); err != nil {
		t.Fatalf("CompleteRecovery failed: %v", err)
	}

	// The token embeds a digest of the old hash; replaying it after the
	// password change fails without any revocation store.
	if err := env.engine.OpenRecovery(ctx, tok); !errors.Is(err, ErrRecoveryRejected) {
		t.Fatalf("expected generic rejection on replay, got %v", err)
	}
	if _, err := env.engine.CompleteRecovery(ctx, tok, "another password!", "another password!"); !errors.Is(err, ErrRecoveryRejected) {
		t.Fatalf("expected generic rejection on replay, got %v", err)
	}
}

func TestRecoveryExpiredLink(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "old password!")

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "user@example.com"); err != nil {
		t.Fatalf("BeginRecovery failed: %v", err)
	}
	tok := env.lastToken(t)

	env.clock.Advance(time.Hour + time.Second)

	if err := env.engine.OpenRecovery(ctx, tok); !errors.Is(err, ErrRecoveryRejected) {
		t.Fatalf("expected generic rejection after expiry, got %v", err)
	}
}

func TestRecoveryInvalidatesExistingSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "old password!")

	old, err := env.engine.Login(ctx, "", "user@example.com", "old password!", false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "user@example.com"); err != nil {
		t.Fatalf("BeginRecovery failed: %v", err)
	}
	if _, err := env.engine.CompleteRecovery(ctx, env.lastToken(t), "brand new password", "brand new password"); err != nil {
		t.Fatalf("CompleteRecovery failed: %v", err)
	}

	if _, err := env.engine.ValidateSession(ctx, old.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old session survived the password change: %v", err)
	}
}

func TestRecoveryClearsLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedAccount(t, "acct-1", "user@example.com", "old password!")

	for i := 0; i < 6; i++ {
		if _, err := env.engine.Login(ctx, "", "user@example.com", "wrong password", false); !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("failure %d: expected ErrLoginRejected, got %v", i+1, err)
		}
		env.clock.Advance(33 * time.Second)
	}

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "user@example.com"); err != nil {
		t.Fatalf("BeginRecovery failed: %v", err)
	}
	if _, err := env.engine.CompleteRecovery(ctx, env.lastToken(t), "brand new password", "brand new password"); err != nil {
		t.Fatalf("CompleteRecovery failed: %v", err)
	}

	// Still inside what would have been the 64s window; the reset lifted it.
	if _, err := env.engine.Login(ctx, "", "user@example.com", "brand new password", false); err != nil {
		t.Fatalf("Login after recovery failed: %v", err)
	}
}

func TestBeginRecoveryUnknownAddressIsSilent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.BeginRecovery(ctx, "captcha-ok", "nobody@example.com"); err != nil {
		t.Fatalf("expected the same outward success for an unknown address, got %v", err)
	}
	if env.email.count() != 0 {
		t.Fatal("no recovery email may be sent for an unknown address")
	}
}
