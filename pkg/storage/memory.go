package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/publishgate/pkg/auth"
)

// MemoryStore keeps everything in process memory. State is lost on restart,
// so it suits development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	keys     map[string]auth.PublishKey
	users    map[string]auth.User
	handoffs map[string]auth.HandoffKey
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:     make(map[string]auth.PublishKey),
		users:    make(map[string]auth.User),
		handoffs: make(map[string]auth.HandoffKey),
		now:      time.Now,
	}
}

func (m *MemoryStore) GetPublishKey(_ context.Context, value string) (*auth.PublishKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[value]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (m *MemoryStore) SavePublishKey(_ context.Context, key *auth.PublishKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.Value] = *key
	return nil
}

func (m *MemoryStore) DeletePublishKey(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[value]; !ok {
		return ErrNotFound
	}
	delete(m.keys, value)
	return nil
}

func (m *MemoryStore) GetPublishKeysByUser(_ context.Context, username string) ([]*auth.PublishKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*auth.PublishKey
	for _, k := range m.keys {
		if k.Username == username {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].Value < out[j].Value
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (m *MemoryStore) GetObfuscatedPublishKey(ctx context.Context, username string, created time.Time, prefix string) (*auth.PublishKey, error) {
	if len(prefix) < auth.PrefixLength {
		return nil, nil
	}
	keys, err := m.GetPublishKeysByUser(ctx, username)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.CreatedMillis() == created.UnixMilli() && strings.HasPrefix(k.Value, prefix) {
			return k, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetUser(_ context.Context, name string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[name]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[name] = auth.User{Name: name, Token: token}
	return nil
}

func (m *MemoryStore) SaveHandoffKey(_ context.Context, value string) (string, error) {
	id := auth.GenerateToken()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handoffs[id] = auth.HandoffKey{ID: id, Value: value, Created: m.now()}
	return id, nil
}

func (m *MemoryStore) GetHandoffKey(_ context.Context, id string) (*auth.HandoffKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handoffs[id]
	if !ok || h.Stale(m.now()) {
		return nil, nil
	}
	return &h, nil
}

func (m *MemoryStore) CompleteHandoffKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handoffs[id]
	if !ok {
		return ErrNotFound
	}
	h.Complete = true
	m.handoffs[id] = h
	return nil
}

func (m *MemoryStore) DeleteStaleHandoffKeys(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, h := range m.handoffs {
		if h.Stale(now) {
			delete(m.handoffs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	var n int64
	for v, k := range m.keys {
		if k.Expired(now) {
			delete(m.keys, v)
			n++
		}
	}
	m.mu.Unlock()

	h, err := m.DeleteStaleHandoffKeys(ctx, now)
	return n + h, err
}

func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
