package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/digital-human/internal/storage"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got != "v" {
		t.Fatalf("unexpected value: %s", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// 端口 1 上没有 redis，PING 必然失败。
	_, err := storage.NewRedisStore(ctx, storage.RedisOptions{Addr: "127.0.0.1:1", Prefix: "test:"})
	if err == nil {
		t.Fatal("expected ping error")
	}
}
