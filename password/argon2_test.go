package password

import (
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())

	bad := []string{
		"",
		"plain-text",
		"$argon2i$v=19$m=8192,t=1,p=1$AAAA$BBBB",
		"$argon2id$v=18$m=8192,t=1,p=1$AAAA$BBBB",
		"$argon2id$v=19$m=1,t=1,p=1$AAAA$BBBB",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$BBBB",
	}
	for _, h := range bad {
		if _, err := hasher.Verify("anything", h); err == nil {
			t.Fatalf("expected error for malformed hash %q", h)
		}
	}
}

func TestSaltsDiffer(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())

	h1, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must not collide")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, _ := NewArgon2(fastConfig())
	hash, err := weak.Hash("some-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strongCfg := fastConfig()
	strongCfg.Memory = 64 * 1024
	strong, _ := NewArgon2(strongCfg)

	upgrade, err := strong.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if !upgrade {
		t.Fatal("expected upgrade under stronger config")
	}

	upgrade, err = weak.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if upgrade {
		t.Fatal("expected no upgrade under identical config")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, mutate := range cases {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}
