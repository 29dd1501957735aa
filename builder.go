package flowguard

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hexfold/flowguard/internal/attackwatch"
	"github.com/hexfold/flowguard/internal/lockout"
	"github.com/hexfold/flowguard/internal/session"
	"github.com/hexfold/flowguard/jwt"
	"github.com/hexfold/flowguard/password"
	"github.com/hexfold/flowguard/token"
)

// Builder assembles an Engine. All collaborators are injected here; once
// Build succeeds the engine is immutable and the builder is spent.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts AccountStore
	captcha  CaptchaVerifier
	email    EmailSender
	clock    Clock
	hasher   PasswordHasher

	secretKey   []byte
	keyProvider SecretKeyProvider

	auditSink AuditSink

	built bool
}

// New creates a Builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence collaborator. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithCaptchaVerifier sets the CAPTCHA collaborator. Required.
func (b *Builder) WithCaptchaVerifier(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithEmailSender sets the email collaborator. Required.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithClock overrides the time source. Defaults to time.Now.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithSecretKey sets the action-token signing key directly.
func (b *Builder) WithSecretKey(key []byte) *Builder {
	b.secretKey = cloneBytes(key)
	return b
}

// WithSecretKeyProvider sets a key provider consulted at Build time. Takes
// precedence over WithSecretKey.
func (b *Builder) WithSecretKeyProvider(p SecretKeyProvider) *Builder {
	b.keyProvider = p
	return b
}

// WithPasswordHasher overrides the default argon2id hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the destination for audit events. Only consulted when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and collaborators and constructs the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.captcha == nil {
		return nil, errors.New("captcha verifier required")
	}
	if b.email == nil {
		return nil, errors.New("email sender required")
	}

	key := b.secretKey
	if b.keyProvider != nil {
		key = b.keyProvider.SigningKey()
	}
	codec, err := token.NewCodec(key)
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	jwtKey := cfg.JWT.PrivateKey
	if len(jwtKey) == 0 && jwt.SigningMethod(cfg.JWT.SigningMethod) == jwt.MethodHS256 {
		jwtKey = cloneBytes(key)
	}
	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    jwtKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		captcha:  b.captcha,
		email:    b.email,
		clock:    clock,
		codec:    codec,
		hasher:   hasher,
		tracker:  lockout.NewTracker(cfg.Lockout.TTL),
		monitor: attackwatch.NewMonitor(attackwatch.Config{
			BucketSize:       cfg.Attack.BucketSize,
			Retention:        cfg.Attack.Retention,
			MinSampleSize:    cfg.Attack.MinSampleSize,
			FailureThreshold: cfg.Attack.FailureThreshold,
		}),
		sessions:   session.NewStore(b.redis, cfg.Session.RedisPrefix),
		jwtManager: jwtManager,
		audit:      newAuditTrail(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
	}

	if cfg.Lockout.SweepInterval > 0 {
		engine.startSweeper(cfg.Lockout.SweepInterval)
	}

	b.built = true

	return engine, nil
}
