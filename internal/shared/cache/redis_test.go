package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyJoinsPrefix(t *testing.T) {
	c := New(nil, "papers:")
	if got := c.Key("doc", "123"); got != "papers:doc:123" {
		t.Fatalf("unexpected key %q", got)
	}
	bare := New(nil, "")
	if got := bare.Key("doc", "123"); got != "doc:123" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestConnectRequiresAddr(t *testing.T) {
	if _, err := Connect(context.Background(), " ", "", 0); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestDeleteWithoutKeysIsNoop(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond}), "p")
	defer c.Close()
	if err := c.Delete(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
