package flowguard

import (
	"errors"
	"time"
)

// Config is the engine's immutable configuration. The Builder clones it on
// Build; mutating the original afterwards has no effect.
type Config struct {
	Token    TokenConfig
	Lockout  LockoutConfig
	Attack   AttackConfig
	Password PasswordConfig
	Session  SessionConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig sets the maximum age per action-token purpose.
type TokenConfig struct {
	RegisterTTL time.Duration
	RememberTTL time.Duration
	RecoverTTL  time.Duration
	UnlockTTL   time.Duration
	LogoutTTL   time.Duration
}

// LockoutConfig tunes the per-account failure tracker.
type LockoutConfig struct {
	// TTL is the attempt-record retention window; it also caps the backoff.
	TTL time.Duration
	// SweepInterval, when positive, runs periodic compaction of expired
	// records. Zero disables the sweeper; eviction is then lazy only.
	SweepInterval time.Duration
}

// AttackConfig tunes the global brute-force detector.
type AttackConfig struct {
	BucketSize       time.Duration
	Retention        time.Duration
	MinSampleSize    uint64
	FailureThreshold float64
}

// PasswordConfig holds argon2id cost parameters plus the engine's minimum
// password length.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// SessionConfig tunes the Redis-backed session store.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// JWTConfig tunes access-token issuance. An empty PrivateKey under hs256
// falls back to the engine's action-token signing key.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// AuditConfig tunes the async audit trail.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig tunes the counter registry.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			RegisterTTL: 24 * time.Hour,
			RememberTTL: 30 * 24 * time.Hour,
			RecoverTTL:  time.Hour,
			UnlockTTL:   time.Hour,
			LogoutTTL:   10 * time.Minute,
		},
		Lockout: LockoutConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 0,
		},
		Attack: AttackConfig{
			BucketSize:       time.Minute,
			Retention:        10 * time.Minute,
			MinSampleSize:    1000,
			FailureThreshold: 0.99,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		Session: SessionConfig{
			RedisPrefix: "fgs",
			Lifetime:    24 * time.Hour,
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "flowguard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate rejects configurations that would produce an unusable or unsafe
// engine.
func (c Config) Validate() error {
	switch {
	case c.Token.RegisterTTL <= 0,
		c.Token.RememberTTL <= 0,
		c.Token.RecoverTTL <= 0,
		c.Token.UnlockTTL <= 0,
		c.Token.LogoutTTL <= 0:
		return errors.New("flowguard: token TTLs must be positive")
	case c.Lockout.TTL <= 0:
		return errors.New("flowguard: lockout TTL must be positive")
	case c.Lockout.SweepInterval < 0:
		return errors.New("flowguard: lockout sweep interval must not be negative")
	case c.Attack.BucketSize < time.Second:
		return errors.New("flowguard: attack bucket size must be at least one second")
	case c.Attack.Retention < 2*c.Attack.BucketSize:
		return errors.New("flowguard: attack window must retain at least two buckets")
	case c.Attack.FailureThreshold <= 0 || c.Attack.FailureThreshold > 1:
		return errors.New("flowguard: attack failure threshold must be in (0, 1]")
	case c.Attack.MinSampleSize == 0:
		return errors.New("flowguard: attack minimum sample size must be positive")
	case c.Password.MinLength < 8:
		return errors.New("flowguard: minimum password length must be at least 8")
	case c.Session.Lifetime <= 0:
		return errors.New("flowguard: session lifetime must be positive")
	case c.JWT.AccessTTL <= 0:
		return errors.New("flowguard: access token TTL must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
