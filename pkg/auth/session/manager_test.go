package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return val, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string { return "sess:" + accessID }

func newTestManager() (*Manager, *memoryStore) {
	store := &memoryStore{data: map[string]string{}}
	return &Manager{store: store, ttl: time.Hour}, store
}

func TestGenerateStoresDigestNotToken(t *testing.T) {
	manager, store := newTestManager()
	token, err := manager.Generate(context.Background(), "access-123", 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stored := store.data["sess:access-123"]
	if stored != "42:"+digest(token) {
		t.Fatalf("unexpected stored value %q", stored)
	}
	if strings.Contains(stored, token) {
		t.Fatalf("raw refresh token persisted")
	}
}

func TestRotateIssuesNewSession(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()
	token, _ := manager.Generate(ctx, "access-123", 42)

	rotation, err := manager.Rotate(ctx, "access-123", token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotation.UserID != 42 || rotation.AccessID == "access-123" || rotation.RefreshToken == token {
		t.Fatalf("unexpected rotation %+v", rotation)
	}
	if _, ok := store.data["sess:access-123"]; ok {
		t.Fatalf("old session left behind")
	}
	if ok, _ := manager.HasSession(ctx, rotation.AccessID); !ok {
		t.Fatalf("new session missing")
	}
}

func TestRotateRejects(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		setup func(*Manager, *memoryStore) (string, string)
	}{
		{"unknown session", func(*Manager, *memoryStore) (string, string) { return "missing", "token" }},
		{"blank token", func(m *Manager, _ *memoryStore) (string, string) {
			_, _ = m.Generate(ctx, "a", 1)
			return "a", " "
		}},
		{"wrong token", func(m *Manager, _ *memoryStore) (string, string) {
			_, _ = m.Generate(ctx, "a", 1)
			return "a", "guess"
		}},
		{"corrupt value", func(_ *Manager, s *memoryStore) (string, string) {
			s.data["sess:a"] = "not-a-user:" + digest("t")
			return "a", "t"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager, store := newTestManager()
			accessID, token := tc.setup(manager, store)
			if _, err := manager.Rotate(ctx, accessID, token); !errors.Is(err, ErrInvalidRefreshToken) {
				t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
			}
		})
	}
}

func TestWrongTokenEndsSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	token, _ := manager.Generate(ctx, "access-1", 5)

	if _, err := manager.Rotate(ctx, "access-1", "stolen-guess"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if _, err := manager.Rotate(ctx, "access-1", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("session should be gone after a bad attempt, got %v", err)
	}
}

func TestConcurrentRotationsRedeemOnce(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	token, _ := manager.Generate(ctx, "access-1", 5)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Rotate(ctx, "access-1", token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("refresh token redeemed %d times", wins)
	}
}

func TestRevokeAndHasSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	if _, err := manager.Generate(ctx, "access-9", 9); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok, err := manager.HasSession(ctx, "access-9"); err != nil || !ok {
		t.Fatalf("expected active session, got %v %v", ok, err)
	}
	if err := manager.Revoke(ctx, "access-9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, err := manager.HasSession(ctx, "access-9"); err != nil || ok {
		t.Fatalf("expected revoked session, got %v %v", ok, err)
	}
	if _, err := manager.HasSession(ctx, ""); err == nil {
		t.Fatal("expected error for blank access id")
	}
}

func TestGenerateRequiresUser(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Generate(context.Background(), "access-1", 0); err == nil {
		t.Fatal("expected error for missing user id")
	}
}
