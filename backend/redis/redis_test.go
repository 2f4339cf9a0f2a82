package redis

import (
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

type redisErr string

func (e redisErr) Error() string { return string(e) }
func (redisErr) RedisError()     {}

var _ goredis.Error = redisErr("")

func TestIsTransient(t *testing.T) {
	transient := []error{
		redisErr("LOADING Redis is loading the dataset in memory"),
		redisErr("BUSYKEY Target key name already exists"),
	}
	for _, err := range transient {
		if !isTransient(err) {
			t.Errorf("isTransient(%v) = false", err)
		}
	}
	hard := []error{
		redisErr("NOAUTH Authentication required"),
		redisErr("ERR unknown command"),
		errors.New("dial tcp: connection refused"),
		nil,
	}
	for _, err := range hard {
		if isTransient(err) {
			t.Errorf("isTransient(%v) = true", err)
		}
	}
}

func TestStorageKeyPrefix(t *testing.T) {
	b, err := New(Config{Client: goredis.NewClient(&goredis.Options{Addr: "localhost:0"})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := b.storageKey("user:list:all"); got != defaultPrefix+"user:list:all" {
		t.Fatalf("storageKey = %q", got)
	}

	b2, err := New(Config{
		Client: goredis.NewClient(&goredis.Options{Addr: "localhost:0"}),
		Prefix: "team:",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := b2.storageKey("k"); got != "team:k" {
		t.Fatalf("storageKey with custom prefix = %q", got)
	}
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("nil client accepted")
	}
}
