// Package password provides the default slow adaptive password hasher:
// argon2id serialized in PHC string format.
//
// The package is a standalone leaf. It satisfies the flowguard
// PasswordHasher interface but does not import flowguard.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 is a configured argon2id hasher. Stateless and safe for
// unsynchronized concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates the cost parameters and returns a hasher. Costs below
// the hardcoded floors are rejected rather than silently raised.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password: memory cost below minimum")
	case cfg.Time < minTimeCost:
		return nil, errors.New("password: time cost below minimum")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password: parallelism below minimum")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password: salt length below minimum")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password: key length below minimum")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives an argon2id hash of the password under a fresh random salt
// and returns it PHC-encoded. Password bytes are used exactly as provided;
// no Unicode normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash under the parameters stored in encodedHash and
// compares in constant time. A malformed encoded hash is an error, not a
// mismatch.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced under weaker
// parameters than the hasher is configured with.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != uint32(len(parsed.hash)), nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encodedHash string) (*phc, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("password: invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("password: unsupported algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("password: missing argon2 version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, errors.New("password: unsupported argon2 version")
	}

	parsed := &phc{}
	if err := parseCosts(parts[3], parsed); err != nil {
		return nil, err
	}

	var err error
	parsed.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(parsed.salt) < int(minSaltLength) {
		return nil, errors.New("password: invalid salt")
	}
	parsed.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(parsed.hash) == 0 {
		return nil, errors.New("password: invalid hash")
	}

	return parsed, nil
}

func parseCosts(part string, out *phc) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return errors.New("password: invalid cost parameters")
	}

	var haveM, haveT, haveP bool
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("password: invalid cost entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return errors.New("password: invalid memory parameter")
			}
			out.memory = uint32(n)
			haveM = true
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return errors.New("password: invalid time parameter")
			}
			out.time = uint32(n)
			haveT = true
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return errors.New("password: invalid parallelism parameter")
			}
			out.parallelism = uint8(n)
			haveP = true
		default:
			return errors.New("password: unsupported cost parameter")
		}
	}
	if !haveM || !haveT || !haveP {
		return errors.New("password: missing cost parameter")
	}
	return nil
}
