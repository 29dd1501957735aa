// Package session persists authenticated-session records in Redis.
//
// Records are stored under a configurable key prefix as compact versioned
// binary blobs with a TTL matching the session lifetime. A per-account index
// set allows invalidating every session of an account in one call, which the
// recovery flow uses after a password change.
package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable indicates the Redis backend could not be reached.
	ErrUnavailable = errors.New("session backend unavailable")
	// ErrCorrupt indicates the stored session blob failed decoding.
	ErrCorrupt = errors.New("session record corrupt")
)

const recordVersionV1 = 1

// Session is one authenticated session.
type Session struct {
	ID        string
	AccountID string
	CreatedAt int64
	ExpiresAt int64
}

// Store reads and writes session records. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store using the given key prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "fgs"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Save persists the session with the given TTL and adds it to the account
// index.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	encoded, err := encodeSession(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(sess.ID), encoded, ttl)
	pipe.SAdd(ctx, s.indexKey(sess.AccountID), sess.ID)
	// Index outlives the sessions slightly so expired members are still
	// reachable for cleanup.
	pipe.Expire(ctx, s.indexKey(sess.AccountID), ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get loads a session by ID. Expired or missing sessions return ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > sess.ExpiresAt {
		// Redis TTL normally handles this; guard against clock drift.
		_ = s.redis.Del(ctx, s.key(sessionID)).Err()
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID, time.Unix(0, 0))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.SRem(ctx, s.indexKey(sess.AccountID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAllForAccount removes every session of the account. Used after a
// password change so outstanding sessions die with the old credential.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) error {
	ids, err := s.redis.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.indexKey(accountID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func encodeSession(sess *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)

	for _, field := range []string{sess.ID, sess.AccountID} {
		if len(field) > 255 {
			return nil, errors.New("session field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersionV1 {
		return nil, ErrCorrupt
	}

	readField := func() (string, error) {
		length, err := reader.ReadByte()
		if err != nil {
			return "", ErrCorrupt
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return "", ErrCorrupt
		}
		return string(raw), nil
	}

	sess := &Session{}
	if sess.ID, err = readField(); err != nil {
		return nil, err
	}
	if sess.AccountID, err = readField(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, ErrCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}
	return sess, nil
}
