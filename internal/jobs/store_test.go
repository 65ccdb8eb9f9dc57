package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TEST_REDIS_URL が設定されている場合のみ実行します。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid TEST_REDIS_URL: %v", err)
	}
	store := NewStore(redis.NewClient(opt), time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return store
}

func TestStoreUpsertPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobID := uuid.NewString()

	if err := store.Upsert(ctx, &Record{JobID: jobID, Visitor: "v1", Status: "submitting"}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	first, err := store.Get(ctx, jobID)
	if err != nil || first == nil {
		t.Fatalf("Get returned %v, %v", first, err)
	}

	if err := store.Upsert(ctx, &Record{JobID: jobID, Visitor: "v1", Status: "succeeded"}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	second, err := store.Get(ctx, jobID)
	if err != nil || second == nil {
		t.Fatalf("Get returned %v, %v", second, err)
	}
	if second.Status != "succeeded" || second.Visitor != "v1" {
		t.Fatalf("unexpected record: %+v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("CreatedAt changed: %s → %s", first.CreatedAt, second.CreatedAt)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Get(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestDecodeRecordKeepsVisitor(t *testing.T) {
	record, err := decodeRecord([]byte(`{"jobId":"j","status":"failed","visitor":"v9"}`))
	if err != nil {
		t.Fatalf("decodeRecord returned error: %v", err)
	}
	if record.JobID != "j" || record.Visitor != "v9" {
		t.Fatalf("unexpected record: %+v", record)
	}
}
