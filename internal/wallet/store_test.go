package wallet

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/renmo-pay/renmo/internal/logging"
)

func sampleRecords() []Record {
	return []Record{
		{Seed: "sAlpha", Address: "rAlpha", Name: "Account 1"},
		{Seed: "sBravo", Address: "rBravo"},
		{Seed: "sCharlie", Address: "rCharlie", Name: "Savings"},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemorySlot(), nil, logging.Discard())

	want := sampleRecords()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	store := NewStore(NewMemorySlot(), nil, logging.Discard())
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil collection, got %#v", got)
	}
}

func TestStoreLoadDiscardsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	slot := NewMemorySlot()
	_ = slot.Write(ctx, []byte("{not json"))
	store := NewStore(slot, nil, logging.Discard())

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load should fail soft, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty collection, got %+v", got)
	}
	payload, _ := slot.Read(ctx)
	if payload != nil {
		t.Fatalf("expected corrupt payload to be cleared, got %q", payload)
	}
}

func TestStoreAddRemoveFind(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemorySlot(), nil, logging.Discard())

	for _, r := range sampleRecords() {
		if err := store.Add(ctx, r); err != nil {
			t.Fatalf("add %s: %v", r.Address, err)
		}
	}

	rec, ok, err := store.Find(ctx, "rBravo")
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if rec.Seed != "sBravo" {
		t.Fatalf("unexpected record %+v", rec)
	}

	removed, err := store.Remove(ctx, "rBravo")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	removed, err = store.Remove(ctx, "rBravo")
	if err != nil || removed {
		t.Fatalf("second remove should be a no-op: removed=%v err=%v", removed, err)
	}

	got, _ := store.Load(ctx)
	if len(got) != 2 || got[0].Address != "rAlpha" || got[1].Address != "rCharlie" {
		t.Fatalf("unexpected order after remove: %+v", got)
	}
}

func TestStoreRename(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemorySlot(), nil, logging.Discard())
	_ = store.Save(ctx, sampleRecords())

	if err := store.Rename(ctx, "rBravo", "Travel"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	rec, _, _ := store.Find(ctx, "rBravo")
	if rec.Name != "Travel" {
		t.Fatalf("expected renamed record, got %+v", rec)
	}
}

func TestFileSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "wallets.json")
	slot, err := NewFileSlot(path)
	if err != nil {
		t.Fatalf("new file slot: %v", err)
	}
	store := NewStore(slot, nil, logging.Discard())

	if err := store.Save(ctx, sampleRecords()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	reopened, _ := NewFileSlot(path)
	got, err := NewStore(reopened, nil, logging.Discard()).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, sampleRecords()) {
		t.Fatalf("unexpected records %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}
