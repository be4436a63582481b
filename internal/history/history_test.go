package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestStore_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &Record{
			TemplateName: fmt.Sprintf("t%d.html", i),
			Subject:      "Hello",
			Recipients:   []string{"a@example.com"},
			SentAt:       base.Add(time.Duration(i) * time.Minute),
			EmailID:      fmt.Sprintf("msg-%d", i),
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if rec.ID == "" {
			t.Error("Append() did not set ID")
		}
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].EmailID != "msg-2" {
		t.Errorf("expected newest first, got %s", records[0].EmailID)
	}

	records, err = store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestStore_CapKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	total := MaxRecords + 5
	for i := 0; i < total; i++ {
		rec := &Record{
			Subject: fmt.Sprintf("s%d", i),
			SentAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != MaxRecords {
		t.Fatalf("expected %d records, got %d", MaxRecords, len(records))
	}
	if records[0].Subject != fmt.Sprintf("s%d", total-1) {
		t.Errorf("newest record = %s, want s%d", records[0].Subject, total-1)
	}
	if records[MaxRecords-1].Subject != "s5" {
		t.Errorf("oldest kept record = %s, want s5", records[MaxRecords-1].Subject)
	}
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.Append(ctx, &Record{Subject: "x"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty history, got %d", len(records))
	}
}
