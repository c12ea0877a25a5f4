package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestPageKey_String(t *testing.T) {
	tests := []struct {
		name     string
		key      PageKey
		expected string
	}{
		{
			name:     "endpoint only",
			key:      PageKey{Endpoint: "/markets"},
			expected: "ingest:markets",
		},
		{
			name: "params sorted deterministically",
			key: PageKey{
				Endpoint: "/markets",
				Params:   url.Values{"limit": {"1000"}, "cursor": {"abc"}},
			},
			expected: "ingest:markets:cursor=abc:limit=1000",
		},
		{
			name:     "nested path",
			key:      PageKey{Endpoint: "/markets/KXBTC/orderbook"},
			expected: "ingest:markets/KXBTC/orderbook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPageEntry_Expiry(t *testing.T) {
	fresh := PageEntry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() {
		t.Error("Entry expiring in a minute should not be expired")
	}
	if fresh.TTL() <= 0 {
		t.Errorf("TTL = %v, want > 0", fresh.TTL())
	}

	stale := PageEntry{Expires: time.Now().Add(-time.Minute)}
	if !stale.IsExpired() {
		t.Error("Entry expired a minute ago should be expired")
	}
	if stale.TTL() != 0 {
		t.Errorf("TTL of expired entry = %v, want 0", stale.TTL())
	}
}

func TestNilManager_IsSafe(t *testing.T) {
	var m *Manager
	ctx := context.Background()
	key := PageKey{Endpoint: "/markets"}

	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("nil manager Get = %v, want ErrCacheMiss", err)
	}
	if err := m.Set(ctx, key, []byte("{}")); err != nil {
		t.Errorf("nil manager Set = %v, want nil", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Errorf("nil manager Delete = %v, want nil", err)
	}
}

func TestManager_SetGet(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, time.Minute)
	ctx := context.Background()

	key := PageKey{
		Endpoint: "/markets",
		Params:   url.Values{"limit": {"1000"}},
	}
	body := []byte(`{"markets": [{"ticker": "KXBTC"}], "cursor": "next"}`)

	if err := m.Set(ctx, key, body); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Get returned %q, want %q", got, body)
	}
}

func TestManager_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, time.Minute)

	_, err := m.Get(context.Background(), PageKey{Endpoint: "/unknown"})
	if err != ErrCacheMiss {
		t.Errorf("Get on absent key = %v, want ErrCacheMiss", err)
	}
}

func TestManager_DifferentCursorsAreDistinct(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, time.Minute)
	ctx := context.Background()

	page1 := PageKey{Endpoint: "/markets", Params: url.Values{"cursor": {"p1"}}}
	page2 := PageKey{Endpoint: "/markets", Params: url.Values{"cursor": {"p2"}}}

	if err := m.Set(ctx, page1, []byte(`{"page": 1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := m.Get(ctx, page2); err != ErrCacheMiss {
		t.Errorf("Distinct cursor should miss, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, time.Minute)
	ctx := context.Background()

	key := PageKey{Endpoint: "/series"}
	if err := m.Set(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}
