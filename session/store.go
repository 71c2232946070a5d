package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when no live registry entry exists for a jti.
var ErrSessionNotFound = errors.New("refresh session not found")

// ErrRedisUnavailable is an exported constant or variable used by the session core.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrEntryCorrupt is returned when a family registry value does not parse.
var ErrEntryCorrupt = errors.New("refresh session entry corrupt")

const (
	refreshPrefix = "refresh:"
	familyPrefix  = "family:"
	scanBatch     = 100
)

// Single round-trip check-and-delete. Returns the stored value when the key
// existed (and deletes it), false otherwise. Two concurrent callers on the
// same key get exactly one value between them.
const consumeScript = `
local val = redis.call("GET", KEYS[1])
if not val then
  return false
end
redis.call("DEL", KEYS[1])
return val
`

var consumeLua = redis.NewScript(consumeScript)

// Entry is a live registry record for a refresh-token jti.
type Entry struct {
	JTI      string
	UserID   string
	FamilyID string
}

// Store defines a public type used by authcore APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	redis redis.UniversalClient
}

// NewStore creates a registry [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

func refreshKey(jti string) string {
	return refreshPrefix + jti
}

func familyRefreshKey(jti, familyID string) string {
	return refreshPrefix + jti + ":family:" + familyID
}

func familyKey(familyID string) string {
	return familyPrefix + familyID
}

// Create registers jti -> userID with the given TTL (nuclear layout).
func (s *Store) Create(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, refreshKey(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CreateInFamily registers jti under a rotation family (family layout) and
// re-arms the family key's TTL so the family outlives its newest token.
func (s *Store) CreateInFamily(ctx context.Context, jti, userID, familyID string, ttl time.Duration) error {
	key := familyRefreshKey(jti, familyID)
	value := userID + ":" + familyID

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	pipe.Expire(ctx, familyKey(familyID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get reports the owning user of a live nuclear entry.
func (s *Store) Get(ctx context.Context, jti string) (string, error) {
	val, err := s.redis.Get(ctx, refreshKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return val, nil
}

// Consume atomically checks and deletes a nuclear entry. A second Consume of
// the same jti returns [ErrSessionNotFound], which is the reuse-detection signal.
func (s *Store) Consume(ctx context.Context, jti string) (*Entry, error) {
	val, err := s.consumeKey(ctx, refreshKey(jti))
	if err != nil {
		return nil, err
	}
	return &Entry{JTI: jti, UserID: val}, nil
}

// ConsumeInFamily atomically checks and deletes a family entry. The SCAN that
// resolves the key is advisory; the Lua GET+DEL on the resolved key is what
// guarantees a single winner under concurrent rotation.
func (s *Store) ConsumeInFamily(ctx context.Context, jti string) (*Entry, error) {
	key, err := s.findFamilyKey(ctx, jti)
	if err != nil {
		return nil, err
	}

	val, err := s.consumeKey(ctx, key)
	if err != nil {
		return nil, err
	}

	userID, familyID, ok := strings.Cut(val, ":")
	if !ok || userID == "" || familyID == "" {
		return nil, ErrEntryCorrupt
	}
	return &Entry{JTI: jti, UserID: userID, FamilyID: familyID}, nil
}

// Delete removes a nuclear entry. Deleting an absent entry is not an error.
func (s *Store) Delete(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, refreshKey(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteInFamily removes a family entry by jti, wherever its family lives.
func (s *Store) DeleteInFamily(ctx context.Context, jti string) error {
	key, err := s.findFamilyKey(ctx, jti)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CreateFamily mints a new family id for a login session chain and records
// its owner with the given TTL.
func (s *Store) CreateFamily(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	familyID := uuid.NewString()
	if err := s.redis.Set(ctx, familyKey(familyID), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return familyID, nil
}

// FamilyOwner reports the user owning a family, or [ErrSessionNotFound].
func (s *Store) FamilyOwner(ctx context.Context, familyID string) (string, error) {
	val, err := s.redis.Get(ctx, familyKey(familyID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return val, nil
}

// RevokeFamily bulk-deletes the family record and every refresh entry in the
// chain. Used when reuse of a consumed token is detected: the blast radius is
// one device's rotation chain, not every session the user has.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	if err := s.redis.Del(ctx, familyKey(familyID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	pattern := refreshPrefix + "*:family:" + familyID
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping verifies registry connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) consumeKey(ctx context.Context, key string) (string, error) {
	res, err := consumeLua.Run(ctx, s.redis, []string{key}).Result()
	if errors.Is(err, redis.Nil) {
		// Script returned false: key absent, already consumed or expired.
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	val, ok := res.(string)
	if !ok || val == "" {
		return "", ErrSessionNotFound
	}
	return val, nil
}

func (s *Store) findFamilyKey(ctx context.Context, jti string) (string, error) {
	pattern := refreshPrefix + jti + ":family:*"
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			return keys[0], nil
		}
		cursor = next
		if cursor == 0 {
			return "", ErrSessionNotFound
		}
	}
}
