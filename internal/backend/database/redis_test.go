package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) ImageStore {
	t.Helper()

	mr := miniredis.RunT(t)
	ds := NewRedisDatabaseFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestRedisDatabase(t *testing.T) {
	runStoreContract(t, newTestRedis)
}

func TestNewRedisDatabase_InvalidURL(t *testing.T) {
	if _, err := NewRedisDatabase("http://not-redis"); err == nil {
		t.Fatalf("expected error for non-redis URL")
	}
}

func TestNewDatabase_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ds, err := NewDatabase(context.Background(), TypeRedis, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })

	if err := ds.Ping(context.Background()); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
}
