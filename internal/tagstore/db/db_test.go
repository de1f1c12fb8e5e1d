package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "store.db")
}

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestOpen_Success tests successful database creation and initialization
func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "store.db")
	db := openTestDB(t, path)

	if db.Path() != path {
		t.Errorf("path = %q, want %q", db.Path(), path)
	}

	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv'`
	if err := db.conn.QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("Failed to query kv table: %v", err)
	}
	if count != 1 {
		t.Error("Table kv does not exist")
	}
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testDBPath(t))

	err := db.Set(ctx, kv.Items{
		"allTags":    json.RawMessage(`["Go"]`),
		"project:p1": json.RawMessage(`{"id":"p1","tags":["Go"]}`),
	})
	if err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := db.Get(ctx, []string{"allTags", "missing"})
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Get() returned %d items, want 1 (absent keys omitted)", len(got))
	}
	if string(got["allTags"]) != `["Go"]` {
		t.Errorf("allTags = %s", got["allTags"])
	}

	all, err := db.Get(ctx, nil)
	if err != nil {
		t.Fatalf("Get(nil) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Get(nil) returned %d items, want 2", len(all))
	}
}

func TestSet_RejectsInvalidJSON(t *testing.T) {
	db := openTestDB(t, testDBPath(t))
	err := db.Set(context.Background(), kv.Items{"k": json.RawMessage(`{nope`)})
	if !errors.Is(err, kv.ErrWrite) {
		t.Errorf("Set() error = %v, want ErrWrite", err)
	}
}

func TestSet_QuotaRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	db, err := OpenWithQuota(testDBPath(t), kv.Quota{BytesPerItem: 64})
	if err != nil {
		t.Fatalf("OpenWithQuota() failed: %v", err)
	}
	defer db.Close()

	big := json.RawMessage(`"` + strings.Repeat("x", 100) + `"`)
	err = db.Set(ctx, kv.Items{"small": json.RawMessage(`1`), "big": big})
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		t.Fatalf("Set() error = %v, want ErrQuotaExceeded", err)
	}

	got, _ := db.Get(ctx, nil)
	if len(got) != 0 {
		t.Errorf("rejected batch left %d items behind", len(got))
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testDBPath(t))
	_ = db.Set(ctx, kv.Items{"a": json.RawMessage(`1`), "b": json.RawMessage(`2`)})

	var seen kv.Changes
	cancel := db.Watch(func(c kv.Changes) { seen = c })
	defer cancel()

	if err := db.Remove(ctx, "a", "missing"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if len(seen) != 1 || !seen["a"].Removed() {
		t.Errorf("changes = %v, want removal of a", seen)
	}
	if string(seen["a"].OldValue) != "1" {
		t.Errorf("old value = %s, want 1", seen["a"].OldValue)
	}

	got, _ := db.Get(ctx, nil)
	if _, ok := got["a"]; ok {
		t.Error("a still present after Remove")
	}
}

func TestWatch_LocalWrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testDBPath(t))

	var batches []kv.Changes
	cancel := db.Watch(func(c kv.Changes) { batches = append(batches, c) })

	_ = db.Set(ctx, kv.Items{"k": json.RawMessage(`1`)})
	_ = db.Set(ctx, kv.Items{"k": json.RawMessage(`1`)}) // unchanged
	_ = db.Set(ctx, kv.Items{"k": json.RawMessage(`2`)})

	if len(batches) != 2 {
		t.Fatalf("got %d notifications, want 2", len(batches))
	}
	if c := batches[1]["k"]; string(c.OldValue) != "1" || string(c.NewValue) != "2" {
		t.Errorf("change = %+v", c)
	}

	cancel()
	_ = db.Set(ctx, kv.Items{"k": json.RawMessage(`3`)})
	if len(batches) != 2 {
		t.Error("cancelled watcher still notified")
	}
}

func TestPoll_SeesOtherConnections(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)
	mine := openTestDB(t, path)
	theirs := openTestDB(t, path)

	_ = mine.Set(ctx, kv.Items{"shared": json.RawMessage(`"a"`), "gone": json.RawMessage(`0`)})

	var seen kv.Changes
	mine.Watch(func(c kv.Changes) { seen = c })

	// Nothing changed behind our back yet.
	n, err := mine.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Poll() = %d, want 0", n)
	}

	_ = theirs.Set(ctx, kv.Items{"shared": json.RawMessage(`"b"`), "new": json.RawMessage(`true`)})
	_ = theirs.Remove(ctx, "gone")

	n, err = mine.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Poll() = %d, want 3", n)
	}
	if c := seen["shared"]; string(c.OldValue) != `"a"` || string(c.NewValue) != `"b"` {
		t.Errorf("shared change = %+v", c)
	}
	if c := seen["new"]; c.OldValue != nil || string(c.NewValue) != "true" {
		t.Errorf("new change = %+v", c)
	}
	if !seen["gone"].Removed() {
		t.Error("gone should be reported removed")
	}

	n, _ = mine.Poll(ctx)
	if n != 0 {
		t.Errorf("second Poll() = %d, want 0", n)
	}
}

func TestReopen_Persists(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	_ = db.Set(ctx, kv.Items{"_migrationVersion": json.RawMessage(`3`)})
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() should be a no-op: %v", err)
	}

	db = openTestDB(t, path)
	items, bytes, err := db.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() failed: %v", err)
	}
	if items != 1 || bytes != len("_migrationVersion")+1 {
		t.Errorf("Usage() = %d items, %d bytes", items, bytes)
	}
}
