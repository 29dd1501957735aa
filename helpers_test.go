package flowguard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// memAccountStore is an in-memory AccountStore for tests.
type memAccountStore struct {
	mu      sync.Mutex
	byEmail map[string]*Account
	byID    map[string]*Account
	err     error
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		byEmail: make(map[string]*Account),
		byID:    make(map[string]*Account),
	}
}

func (s *memAccountStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	account, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *account
	return &cp, nil
}

func (s *memAccountStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	account, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *account
	return &cp, nil
}

func (s *memAccountStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return ErrAccountExists
	}
	cp := *account
	s.byEmail[cp.Email] = &cp
	s.byID[cp.ID] = &cp
	return nil
}

func (s *memAccountStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	account, ok := s.byID[id]
	if !ok {
		return errors.New("account not found")
	}
	account.PasswordHash = hash
	return nil
}

type fakeCaptcha struct {
	ok    bool
	calls atomic.Int64
}

func (c *fakeCaptcha) Verify(context.Context, string) bool {
	c.calls.Add(1)
	return c.ok
}

type sentEmail struct {
	Address    string
	TemplateID string
	Params     map[string]string
}

type captureEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (c *captureEmail) Send(_ context.Context, address, templateID string, params map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentEmail{Address: address, TemplateID: templateID, Params: params})
	return nil
}

func (c *captureEmail) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *captureEmail) last(t *testing.T) sentEmail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return c.sent[len(c.sent)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingHasher is a fast PasswordHasher that counts Verify calls so tests
// can assert the lockout check runs before the password comparison.
type countingHasher struct {
	verifyCalls atomic.Int64
}

func (h *countingHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (h *countingHasher) Verify(password, encodedHash string) (bool, error) {
	h.verifyCalls.Add(1)
	return encodedHash == "plain$"+password, nil
}

type testEnv struct {
	engine  *Engine
	store   *memAccountStore
	captcha *fakeCaptcha
	email   *captureEmail
	clock   *fakeClock
	hasher  *countingHasher
	mr      *miniredis.Miniredis
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := defaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:   newMemAccountStore(),
		captcha: &fakeCaptcha{ok: true},
		email:   &captureEmail{},
		clock:   &fakeClock{now: time.Unix(1700000000, 0)},
		hasher:  &countingHasher{},
		mr:      mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(env.store).
		WithCaptchaVerifier(env.captcha).
		WithEmailSender(env.email).
		WithClock(env.clock.Now).
		WithSecretKey(testSigningKey).
		WithPasswordHasher(env.hasher).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// newTestEnvWithAudit builds an engine with the audit trail enabled and
// wired to the given sink.
func newTestEnvWithAudit(t *testing.T, sink AuditSink) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := defaultConfig()
	cfg.Audit.Enabled = true

	env := &testEnv{
		store:   newMemAccountStore(),
		captcha: &fakeCaptcha{ok: true},
		email:   &captureEmail{},
		clock:   &fakeClock{now: time.Unix(1700000000, 0)},
		hasher:  &countingHasher{},
		mr:      mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(env.store).
		WithCaptchaVerifier(env.captcha).
		WithEmailSender(env.email).
		WithClock(env.clock.Now).
		WithSecretKey(testSigningKey).
		WithPasswordHasher(env.hasher).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// seedAccount registers an account directly in the store, bypassing the
// registration flow.
func (env *testEnv) seedAccount(t *testing.T, id, email, password string) *Account {
	t.Helper()
	hash, err := env.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	account := &Account{ID: id, Email: email, PasswordHash: hash, Status: AccountActive}
	if err := env.store.Create(context.Background(), account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return account
}

// lastToken extracts the action token from the most recent captured email.
func (env *testEnv) lastToken(t *testing.T) string {
	t.Helper()
	tok := env.email.last(t).Params[EmailParamToken]
	if tok == "" {
		t.Fatal("captured email carries no token")
	}
	return tok
}
