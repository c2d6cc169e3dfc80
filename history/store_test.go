package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		err := store.Record(ctx, Entry{
			At:             base.Add(time.Duration(i) * time.Second),
			Path:           "/game/abc",
			Classification: "offline",
			Details:        "World",
			State:          "Round: 1 / 5",
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if !entries[0].At.After(entries[1].At) {
		t.Error("Expected newest entry first")
	}
	if entries[0].ID == "" {
		t.Error("Expected generated entry id")
	}
	if entries[0].Details != "World" {
		t.Errorf("Unexpected details: %s", entries[0].Details)
	}
}

func TestRecentEmptyStore(t *testing.T) {
	store := openTestStore(t)
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := Entry{At: time.Now().UTC().Add(-48 * time.Hour), Path: "/", Classification: "menu", Details: "In Menu"}
	fresh := Entry{At: time.Now().UTC(), Path: "/game/x", Classification: "offline", Details: "World"}
	if err := store.Record(ctx, old); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, fresh); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	deleted, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", deleted)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/game/x" {
		t.Errorf("Expected only the fresh entry to survive, got %+v", entries)
	}
}

func TestPruneRejectsNonPositiveRetention(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Error("Expected error for zero retention")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if err := first.Record(ctx, Entry{Path: "/", Classification: "menu", Details: "In Menu"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer second.Close()

	entries, err := second.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected existing entry to survive reopen, got %d", len(entries))
	}
}
