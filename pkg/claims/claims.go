// Package claims makes sure only one process sends a given daily email.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

const DefaultTTL = 36 * time.Hour

// Store hands out one claim per recipient per calendar day. Claim reports
// false when someone else already holds the claim. Release gives a claim back
// so a later tick can retry the send.
type Store interface {
	Claim(ctx context.Context, email, day string) (bool, error)
	Release(ctx context.Context, email, day string) error
}

// MemoryStore keeps claims in process memory. Claims for days other than the
// most recent one are dropped as new days arrive.
type MemoryStore struct {
	mu     sync.Mutex
	day    string
	claims map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]struct{})}
}

func (m *MemoryStore) Claim(ctx context.Context, email, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if day != m.day {
		m.day = day
		m.claims = make(map[string]struct{})
	}
	key := normalize(email)
	if _, taken := m.claims[key]; taken {
		return false, nil
	}
	m.claims[key] = struct{}{}
	return true, nil
}

func (m *MemoryStore) Release(ctx context.Context, email, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if day == m.day {
		delete(m.claims, normalize(email))
	}
	return nil
}

type claimRecord struct {
	ClaimedAt time.Time `json:"claimed_at"`
	Owner     string    `json:"owner,omitempty"`
}

// RedisStore shares claims between replicas with SET NX.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	owner  string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration, owner string) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, owner: owner, now: time.Now}
}

func (s *RedisStore) key(email, day string) string {
	return fmt.Sprintf("climatewatch:claim:%s:%s", day, normalize(email))
}

func (s *RedisStore) Claim(ctx context.Context, email, day string) (bool, error) {
	record, err := json.Marshal(claimRecord{ClaimedAt: s.now().UTC(), Owner: s.owner})
	if err != nil {
		return false, fmt.Errorf("encode claim: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(email, day), record, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s for %s: %w", email, day, err)
	}
	if !ok {
		logger.Debug("send already claimed by another instance", "email", email, "day", day)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, email, day string) error {
	if err := s.client.Del(ctx, s.key(email, day)).Err(); err != nil {
		return fmt.Errorf("release claim %s for %s: %w", email, day, err)
	}
	return nil
}

// Owner returns who holds the claim, if anyone.
func (s *RedisStore) Owner(ctx context.Context, email, day string) (string, bool, error) {
	data, err := s.client.Get(ctx, s.key(email, day)).Bytes()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read claim: %w", err)
	}
	var record claimRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return "", false, fmt.Errorf("decode claim: %w", err)
	}
	return record.Owner, true, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
