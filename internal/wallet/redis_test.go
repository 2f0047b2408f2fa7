package wallet

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/renmo-pay/renmo/internal/logging"
)

func TestRedisSlotPersistsCollection(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	store := NewStore(NewRedisSlot(cache, ""), nil, logging.Discard())

	empty, err := store.Load(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty load, got %+v %v", empty, err)
	}

	if err := store.Add(ctx, Record{Seed: "sAlpha", Address: "rAlpha"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !mr.Exists(DefaultSlotName) {
		t.Fatalf("expected key %s to be written", DefaultSlotName)
	}

	mr.Set(DefaultSlotName, "garbage")
	got, err := store.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected corrupt payload to be discarded, got %+v %v", got, err)
	}
	if mr.Exists(DefaultSlotName) {
		t.Fatalf("expected corrupt key to be deleted")
	}
}
