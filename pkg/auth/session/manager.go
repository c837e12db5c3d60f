// Package session keeps one refresh session per access token id (jti) in
// Redis. The refresh token itself is never stored, only its SHA-256.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errNoAccessID          = errors.New("session: access id is required")
)

// Store is the Redis surface the manager needs. Missing keys surface as
// redis.Nil.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware needs to reject access
// tokens whose session was revoked.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store Store
	ttl   time.Duration
}

type record struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_sha256"`
}

func (r record) matches(userID uuid.UUID, token string) bool {
	return r.UserID == userID && subtle.ConstantTimeCompare([]byte(r.TokenHash), []byte(digest(token))) == 1
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewManager requires the refresh TTL to outlive the access token it backs.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	refresh := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case refresh <= 0:
		return nil, errors.New("session: refresh token ttl must be positive")
	case refresh <= access:
		return nil, fmt.Errorf("session: refresh ttl %s must exceed access ttl %s", refresh, access)
	}
	return &Manager{store: store, ttl: refresh}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	if blank(accessID) {
		return "", errNoAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("session: user id is required")
	}
	return m.open(ctx, userID, accessID)
}

// Rotate trades a valid refresh token for a new jti and refresh token. The
// old session is claimed with GETDEL, so of two concurrent rotations with
// the same token only one succeeds.
func (m *Manager) Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error) {
	if blank(oldAccessID) || blank(provided) {
		return "", "", ErrInvalidRefreshToken
	}
	key := m.store.AccessSessionKey(oldAccessID)

	// Check before claiming so a wrong token cannot end someone's session.
	current, err := m.read(m.store.Get(ctx, key))
	if err != nil {
		return "", "", err
	}
	if !current.matches(userID, provided) {
		return "", "", ErrInvalidRefreshToken
	}
	claimed, err := m.read(m.store.GetDel(ctx, key))
	if err != nil {
		return "", "", err
	}
	if !claimed.matches(userID, provided) {
		return "", "", ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.open(ctx, userID, accessID)
	if err != nil {
		return "", "", err
	}
	return accessID, token, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if blank(accessID) {
		return errNoAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

// HasSession reports whether accessID still has a live refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if blank(accessID) {
		return false, errNoAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redislib.Nil):
		return false, nil
	default:
		return false, err
	}
}

func (m *Manager) open(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: read random: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	raw, err := json.Marshal(record{UserID: userID, TokenHash: digest(token)})
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(raw), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// read decodes a stored record. A missing or corrupt record is an invalid
// refresh token; other store errors pass through.
func (m *Manager) read(raw string, err error) (record, error) {
	if errors.Is(err, redislib.Nil) {
		return record{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	if json.Unmarshal([]byte(raw), &rec) != nil {
		return record{}, ErrInvalidRefreshToken
	}
	return rec, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
