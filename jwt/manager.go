// Package jwt issues and parses the signed access tokens handed out when a
// flow establishes an authenticated session.
//
// Access tokens carry only the account and session identifiers; all
// revocation state lives in the session store, so deleting the session kills
// the token regardless of its remaining lifetime.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 under a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// ErrTokenInvalid is returned for any token that fails parsing or
// signature/claim validation.
var ErrTokenInvalid = errors.New("jwt: invalid access token")

// Config holds token issuance and validation parameters.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret, or the Ed25519 seed (32 bytes) or
	// full private key (64 bytes).
	PrivateKey []byte
	// PublicKey is the raw Ed25519 public key; ignored for HS256.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	AID string `json:"aid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager creates and parses access tokens. Immutable after NewManager and
// safe for concurrent use.
type Manager struct {
	config Config
	edPriv ed25519.PrivateKey
	edPub  ed25519.PublicKey
}

// NewManager validates the configuration and prepares signing material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway")
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 16 {
			return nil, errors.New("jwt: hs256 requires a secret of at least 16 bytes")
		}
	case MethodEd25519:
		switch len(cfg.PrivateKey) {
		case ed25519.SeedSize:
			m.edPriv = ed25519.NewKeyFromSeed(cfg.PrivateKey)
		case ed25519.PrivateKeySize:
			m.edPriv = ed25519.PrivateKey(cfg.PrivateKey)
		case 0:
			// Verify-only manager.
		default:
			return nil, errors.New("jwt: invalid ed25519 private key size")
		}
		switch {
		case len(cfg.PublicKey) == ed25519.PublicKeySize:
			m.edPub = ed25519.PublicKey(cfg.PublicKey)
		case m.edPriv != nil:
			m.edPub = m.edPriv.Public().(ed25519.PublicKey)
		default:
			return nil, errors.New("jwt: ed25519 requires a public or private key")
		}
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}

	return m, nil
}

// CreateAccess issues a signed access token for the account and session.
func (m *Manager) CreateAccess(accountID, sessionID string, now time.Time) (string, error) {
	claims := AccessClaims{
		AID: accountID,
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	switch m.config.SigningMethod {
	case MethodHS256:
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		return tok.SignedString(m.config.PrivateKey)
	case MethodEd25519:
		if m.edPriv == nil {
			return "", errors.New("jwt: manager is verify-only")
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
		return tok.SignedString(m.edPriv)
	default:
		return "", errors.New("jwt: unsupported signing method")
	}
}

// ParseAccess validates the token signature and registered claims and
// returns the access claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	var (
		methods []string
		keyFn   jwt.Keyfunc
	)
	switch m.config.SigningMethod {
	case MethodHS256:
		methods = []string{jwt.SigningMethodHS256.Alg()}
		keyFn = func(*jwt.Token) (interface{}, error) { return m.config.PrivateKey, nil }
	case MethodEd25519:
		methods = []string{jwt.SigningMethodEdDSA.Alg()}
		keyFn = func(*jwt.Token) (interface{}, error) { return m.edPub, nil }
	default:
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, keyFn, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AID == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
