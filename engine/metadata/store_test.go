package metadata

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func writeFixture(t *testing.T, records []Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE chunks (
		id      INTEGER PRIMARY KEY,
		content TEXT NOT NULL,
		title   TEXT NOT NULL DEFAULT '',
		source  TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, r := range records {
		if _, err := db.Exec(`INSERT INTO chunks (id, content, title, source) VALUES (?, ?, ?, ?)`,
			r.ID, r.Content, r.Title, r.Source); err != nil {
			t.Fatalf("insert record %d: %v", r.ID, err)
		}
	}
	return path
}

func TestOpen_LoadsAllRecords(t *testing.T) {
	want := []Record{
		{ID: 0, Content: "Memory loss is the key symptom.", Title: "Symptoms", Source: "https://example.org/symptoms"},
		{ID: 1, Content: "There is no cure for the disease.", Title: "Treatment", Source: "https://example.org/treatment"},
		{ID: 7, Content: "Wandering is a common behavior.", Title: "Behavior", Source: "https://example.org/behavior"},
	}
	store, err := Open(writeFixture(t, want))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Len() != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), store.Len())
	}
	for _, w := range want {
		got, ok := store.Get(w.ID)
		if !ok {
			t.Errorf("record %d missing", w.ID)
			continue
		}
		if got != w {
			t.Errorf("record %d: got %+v, want %+v", w.ID, got, w)
		}
	}
}

func TestGet_UnmatchedID(t *testing.T) {
	store, err := Open(writeFixture(t, []Record{{ID: 0, Content: "only one"}}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.Get(42); ok {
		t.Errorf("expected miss for id 42")
	}
}

func TestOpen_MissingArtifact(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.db")); err == nil {
		t.Errorf("expected error for missing artifact")
	}
}

func TestNewStore(t *testing.T) {
	store := NewStore([]Record{{ID: 3, Content: "c", Title: "t", Source: "s"}})
	if r, ok := store.Get(3); !ok || r.Title != "t" {
		t.Errorf("unexpected record: %+v ok=%v", r, ok)
	}
}
