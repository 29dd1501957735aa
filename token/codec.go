// Package token issues and verifies purpose-scoped, time-bounded,
// tamper-evident action tokens.
//
// A token carries its fields in the clear; only authenticity and integrity
// are protected, not confidentiality. The wire form is
//
//	base64url(body) + "." + base64url(signature)
//
// where body is a canonical, order-preserving binary encoding of
// (purpose, subject, payload fields, issued-at) and signature is
// HMAC-SHA256 over the body under the codec's secret key. The purpose acts
// as a domain separator: a token minted for one flow never verifies under
// another, even with a valid signature.
//
// # What this package must NOT do
//
//   - Keep any per-token state. Tokens are never persisted; expiry is the
//     only timeout semantic.
//   - Trust any decoded field before the signature has been checked, with
//     the single exception of the purpose tag, which is compared first so
//     cross-flow confusion is reported as such.
package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"time"
)

// Purpose tags a token with the flow it was minted for.
type Purpose string

const (
	// PurposeRegister covers account-activation tokens carried in
	// registration email links.
	PurposeRegister Purpose = "register"
	// PurposeRemember covers long-lived remember-me cookie tokens.
	PurposeRemember Purpose = "remember"
	// PurposeRecover covers password-recovery email tokens.
	PurposeRecover Purpose = "recover"
	// PurposeUnlock covers account-unlock email tokens.
	PurposeUnlock Purpose = "unlock"
	// PurposeLogout covers short-lived anti-forgery logout tokens bound to
	// a session identifier.
	PurposeLogout Purpose = "logout"
)

var (
	// ErrMalformed indicates the token failed structural decoding.
	ErrMalformed = errors.New("token malformed")
	// ErrPurposeMismatch indicates the token was minted for a different flow.
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	// ErrInvalidSignature indicates the signature does not match the body.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired indicates the token is older than the allowed age.
	ErrExpired = errors.New("token expired")
)

const (
	bodyVersionV1   = 1
	minKeyBytes     = 16
	maxFieldBytes   = 1024
	maxPayloadCount = 16
)

// Strict decoding rejects non-zero padding bits in the final base64 quantum.
// Without it, a bit flip confined to those bits would decode to the same
// bytes and verify successfully.
var b64 = base64.RawURLEncoding.Strict()

// Codec signs and verifies action tokens under a single secret key. A Codec
// is stateless and safe for unsynchronized concurrent use.
type Codec struct {
	key []byte
}

// NewCodec creates a Codec. The key must be at least 16 bytes.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < minKeyBytes {
		return nil, errors.New("token: signing key must be at least 16 bytes")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// Issue builds a signed token for the given purpose, subject, and payload
// fields, stamped with now. Payload field order is preserved and round-trips
// through Verify.
func (c *Codec) Issue(purpose Purpose, subject string, payload []string, now time.Time) (string, error) {
	body, err := encodeBody(purpose, subject, payload, now.Unix())
	if err != nil {
		return "", err
	}

	sig := c.sign(body)

	return b64.EncodeToString(body) +
		"." +
		b64.EncodeToString(sig), nil
}

// Verify decodes the token, checks that it was minted for the expected
// purpose, authenticates the signature in constant time, and enforces the
// age bound. The boundary now-issuedAt == maxAge is still valid.
//
// The checks run in that exact order: no decoded field besides the purpose
// tag (the timestamp included) influences control flow before the
// signature has been authenticated.
func (c *Codec) Verify(tok string, expected Purpose, maxAge time.Duration, now time.Time) (string, []string, error) {
	dot := strings.IndexByte(tok, '.')
	if dot < 0 || strings.IndexByte(tok[dot+1:], '.') >= 0 {
		return "", nil, ErrMalformed
	}

	body, err := b64.DecodeString(tok[:dot])
	if err != nil {
		return "", nil, ErrMalformed
	}
	sig, err := b64.DecodeString(tok[dot+1:])
	if err != nil {
		return "", nil, ErrMalformed
	}

	purpose, subject, payload, issuedAt, err := decodeBody(body)
	if err != nil {
		return "", nil, ErrMalformed
	}

	if purpose != expected {
		return "", nil, ErrPurposeMismatch
	}

	if !hmac.Equal(sig, c.sign(body)) {
		return "", nil, ErrInvalidSignature
	}

	if now.Unix()-issuedAt > int64(maxAge/time.Second) {
		return "", nil, ErrExpired
	}

	return subject, payload, nil
}

func (c *Codec) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(body)
	return mac.Sum(nil)
}

func encodeBody(purpose Purpose, subject string, payload []string, issuedAt int64) ([]byte, error) {
	if len(payload) > maxPayloadCount {
		return nil, errors.New("token: too many payload fields")
	}

	var buf bytes.Buffer
	buf.WriteByte(bodyVersionV1)

	if err := writeField(&buf, string(purpose)); err != nil {
		return nil, err
	}
	if err := writeField(&buf, subject); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(payload)))
	for _, field := range payload {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, issuedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeBody(body []byte) (Purpose, string, []string, int64, error) {
	reader := bytes.NewReader(body)

	version, err := reader.ReadByte()
	if err != nil || version != bodyVersionV1 {
		return "", "", nil, 0, ErrMalformed
	}

	purpose, err := readField(reader)
	if err != nil {
		return "", "", nil, 0, ErrMalformed
	}
	subject, err := readField(reader)
	if err != nil {
		return "", "", nil, 0, ErrMalformed
	}

	count, err := reader.ReadByte()
	if err != nil || int(count) > maxPayloadCount {
		return "", "", nil, 0, ErrMalformed
	}

	var payload []string
	for i := 0; i < int(count); i++ {
		field, err := readField(reader)
		if err != nil {
			return "", "", nil, 0, ErrMalformed
		}
		payload = append(payload, field)
	}

	var issuedAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return "", "", nil, 0, ErrMalformed
	}
	if reader.Len() != 0 {
		return "", "", nil, 0, ErrMalformed
	}

	return Purpose(purpose), subject, payload, issuedAt, nil
}

func writeField(buf *bytes.Buffer, field string) error {
	if len(field) > maxFieldBytes {
		return errors.New("token: field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(field))); err != nil {
		return err
	}
	buf.WriteString(field)
	return nil
}

func readField(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if int(length) > maxFieldBytes {
		return "", ErrMalformed
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
