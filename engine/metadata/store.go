// Package metadata provides the read-only chunk metadata table that parallels
// the vector index. Records are keyed by the same dense identifiers as the
// index and loaded eagerly from a SQLite artifact at startup.
package metadata

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Record maps a vector identifier to its source text and attribution.
type Record struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Title   string `json:"title"`
	Source  string `json:"source"`
}

// Store holds all metadata records in memory. Immutable after Open; safe for
// unsynchronized concurrent reads.
type Store struct {
	records map[int64]Record
}

// Open loads every record from the SQLite artifact at path. The database
// handle is closed before returning; queries never touch disk afterwards.
// A missing or unreadable artifact is an error (fatal at startup).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, content, title, source FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("metadata: query chunks: %w", err)
	}
	defer rows.Close()

	records := make(map[int64]Record)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Content, &r.Title, &r.Source); err != nil {
			return nil, fmt.Errorf("metadata: scan chunk: %w", err)
		}
		records[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: read chunks: %w", err)
	}

	return &Store{records: records}, nil
}

// NewStore builds a Store directly from records. Intended for tests and
// in-process fixtures.
func NewStore(records []Record) *Store {
	m := make(map[int64]Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return &Store{records: m}
}

// Get returns the record for id. The second return reports whether the id has
// a record; callers skip unmatched ids rather than failing, tolerating
// index/metadata generation drift.
func (s *Store) Get(id int64) (Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Len returns the number of loaded records.
func (s *Store) Len() int { return len(s.records) }
