package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/config"
	"github.com/angelmondragon/posync/pkg/enums"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	store := newMemoryRedis()
	ctx := context.Background()

	a, err := NewRedisLock(store, "posync:lock:sync:store-1", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "posync:lock:sync:store-1", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire should win, ok=%v err=%v", ok, err)
	}
	if store.ttls["posync:lock:sync:store-1"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["posync:lock:sync:store-1"])
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatalf("second acquire should lose")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, err := store.Get(ctx, "posync:lock:sync:store-1"); err != nil {
		t.Fatalf("non-owner release must keep the lock: %v", err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatalf("lock should be free after owner release")
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := newMemoryRedis()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	// simulate expiry and takeover by another agent
	store.data["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "someone-else" {
		t.Fatalf("release must not delete a lock owned by another agent")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatalf("expected error without client")
	}
	if _, err := NewRedisLock(newMemoryRedis(), "", 0); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestRedisStatusPublisherWritesSnapshot(t *testing.T) {
	store := newMemoryRedis()
	pub, err := NewRedisStatusPublisher(store, "posync:status:till-7", "till-7", 0, logger.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	msg := "transaction abc: boom"
	pub.Publish(Status{Online: true, PendingCount: 3, LastError: &msg})

	raw, err := store.Get(context.Background(), "posync:status:till-7")
	if err != nil {
		t.Fatalf("status not written: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["deviceId"] != "till-7" || got["pendingCount"] != float64(3) || got["lastError"] != msg {
		t.Fatalf("unexpected payload %v", got)
	}
	if store.ttls["posync:status:till-7"] != defaultStatusTTL {
		t.Fatalf("expected default ttl")
	}
}

func TestAgentsSharingAStoreExcludeEachOther(t *testing.T) {
	store := newMemoryRedis()
	cfg := config.Config{DB: config.DBConfig{Driver: config.DriverPostgres, DSN: "postgres://pos@db.internal/posync"}}
	lockFor := func(deviceID string) Lock {
		lock, err := NewRedisLock(store, "posync:lock:sync:"+cfg.SyncLockScope(deviceID), time.Minute)
		require.NoError(t, err)
		return lock
	}

	agentA := newHarness(t, true, func(p *OrchestratorParams) {
		p.Lock = lockFor("hostA")
		p.DisableOpportunistic = true
	})
	agentB := newHarnessOn(t, agentA.client, true, func(p *OrchestratorParams) {
		p.Lock = lockFor("hostB")
		p.DisableOpportunistic = true
	})
	ctx := context.Background()

	_, _, err := agentA.orch.CreateOfflineTransaction(ctx, saleInput())
	require.NoError(t, err)

	pushing := make(chan struct{})
	release := make(chan struct{})
	agentA.pusher.setFn(func(backend.OfflineTransaction) error {
		close(pushing)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := agentA.orch.SyncAll(ctx)
		done <- err
	}()
	<-pushing

	result, err := agentB.orch.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, enums.SyncSkipAlreadySyncing, result.Skipped)
	require.Zero(t, agentB.pusher.count())

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, agentA.pusher.count())
}
