package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// liveClient returns a client for TEST_REDIS_ADDR or skips the test.
func liveClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := NewClient(logger.Nop(), Config{Addr: addr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestEmbeddingKey(t *testing.T) {
	if got := EmbeddingKey("โคก 325 มล"); got != "embedding:โคก 325 มล" {
		t.Fatalf("EmbeddingKey: got=%q", got)
	}
}

func TestDecodeVector(t *testing.T) {
	vec, err := decodeVector([]byte(`[0.5,-1,2]`))
	if err != nil || len(vec) != 3 || vec[1] != -1 {
		t.Fatalf("decodeVector: vec=%v err=%v", vec, err)
	}
	if _, err := decodeVector([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty vector")
	}
	if _, err := decodeVector([]byte(`{`)); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestDecodeJobUpdate(t *testing.T) {
	id := uuid.New()
	msg, err := decodeJobUpdate(`{"job_id":"` + id.String() + `","job_type":"receipt_process","progress":33,"stage":"vision_extraction"}`)
	if err != nil {
		t.Fatalf("decodeJobUpdate: %v", err)
	}
	if msg.JobID != id || msg.Progress != 33 || msg.Stage != "vision_extraction" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := decodeJobUpdate(`{"job_type":"x"}`); err == nil {
		t.Fatalf("expected error without job_id")
	}
}

func TestNewClientRequiresAddr(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected error for missing address")
	}
}

func TestEmbeddingCacheUnreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	c, err := NewEmbeddingCache(logger.Nop(), rdb, 0)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	if _, _, err := c.Get(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}

func TestEmbeddingCacheLive(t *testing.T) {
	rdb := liveClient(t)
	c, err := NewEmbeddingCache(logger.Nop(), rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	ctx := context.Background()
	key := "test " + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(ctx, EmbeddingKey(key)).Err() })

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("want miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, key, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	vec, ok, err := c.Get(ctx, key)
	if err != nil || !ok || len(vec) != 3 {
		t.Fatalf("Get: vec=%v ok=%v err=%v", vec, ok, err)
	}
	ttl, err := rdb.TTL(ctx, EmbeddingKey(key)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl: %v err=%v", ttl, err)
	}
}

func TestJobBusLive(t *testing.T) {
	rdb := liveClient(t)
	bus, err := NewJobBus(logger.Nop(), rdb, "test."+uuid.NewString())
	if err != nil {
		t.Fatalf("NewJobBus: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan types.JobUpdate, 1)
	if err := bus.StartForwarder(ctx, func(m types.JobUpdate) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	want := types.JobUpdate{JobID: uuid.New(), JobType: "receipt_process", Progress: 66}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.JobID != want.JobID || m.Progress != 66 {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for job update")
	}
}
