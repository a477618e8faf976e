// Package store persists encoded documents in SQLite and serves them as an
// indexed sample source.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/internal/store/migrations"
)

var (
	// ErrNotFound is returned for an unknown index or document id.
	ErrNotFound = errors.New("store: sample not found")

	// ErrCorrupt is returned when a stored token blob cannot be decoded.
	ErrCorrupt = errors.New("store: corrupt token blob")
)

var _ sentperm.SampleSource = (*Store)(nil)

// Record is a document to insert.
type Record struct {
	Name   string
	Source []int32
	Target []int32
}

// Store is a SQLite-backed sample store. Samples are addressed by a dense
// insertion index and by a generated document id. Sizes are cached in
// memory so the dataset can sort and filter without queries.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	sizes [][2]int
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.loadSizes(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) loadSizes() error {
	rows, err := s.db.Query("SELECT src_len, tgt_len FROM samples ORDER BY idx")
	if err != nil {
		return fmt.Errorf("loading sizes: %w", err)
	}
	defer rows.Close()

	var sizes [][2]int
	for rows.Next() {
		var src, tgt int
		if err := rows.Scan(&src, &tgt); err != nil {
			return fmt.Errorf("scanning sizes: %w", err)
		}
		sizes = append(sizes, [2]int{src, tgt})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading sizes: %w", err)
	}

	s.mu.Lock()
	s.sizes = sizes
	s.mu.Unlock()
	return nil
}

// Put inserts records in one transaction and returns their document ids.
func (s *Store) Put(ctx context.Context, records ...Record) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (idx, doc_id, name, source, target, src_len, tgt_len)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]uuid.UUID, len(records))
	added := make([][2]int, len(records))
	for i, r := range records {
		ids[i] = uuid.New()
		var target []byte
		if r.Target != nil {
			target = encodeTokens(r.Target)
		}
		_, err := stmt.ExecContext(ctx,
			len(s.sizes)+i, ids[i].String(), r.Name,
			encodeTokens(r.Source), target, len(r.Source), len(r.Target))
		if err != nil {
			return nil, fmt.Errorf("inserting %q: %w", r.Name, err)
		}
		added[i] = [2]int{len(r.Source), len(r.Target)}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	s.sizes = append(s.sizes, added...)
	return ids, nil
}

// Len implements sentperm.SampleSource.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sizes)
}

// Sizes implements sentperm.SampleSource.
func (s *Store) Sizes(i int) (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sizes[i][0], s.sizes[i][1]
}

// Get implements sentperm.SampleSource.
func (s *Store) Get(ctx context.Context, i int) (sentperm.Sample, error) {
	var source, target []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT source, target FROM samples WHERE idx = ?", i,
	).Scan(&source, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return sentperm.Sample{}, fmt.Errorf("sample %d: %w", i, ErrNotFound)
	}
	if err != nil {
		return sentperm.Sample{}, fmt.Errorf("querying sample %d: %w", i, err)
	}

	sample := sentperm.Sample{ID: i}
	if sample.Source, err = decodeTokens(source); err != nil {
		return sentperm.Sample{}, fmt.Errorf("sample %d source: %w", i, err)
	}
	if target != nil {
		if sample.Target, err = decodeTokens(target); err != nil {
			return sentperm.Sample{}, fmt.Errorf("sample %d target: %w", i, err)
		}
	}
	return sample, nil
}

// Index returns the index of the document with the given id.
func (s *Store) Index(ctx context.Context, id uuid.UUID) (int, error) {
	var idx int
	err := s.db.QueryRowContext(ctx,
		"SELECT idx FROM samples WHERE doc_id = ?", id.String(),
	).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("querying document %s: %w", id, err)
	}
	return idx, nil
}

// Name returns the name recorded for sample i.
func (s *Store) Name(ctx context.Context, i int) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM samples WHERE idx = ?", i).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sample %d: %w", i, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying sample %d: %w", i, err)
	}
	return name, nil
}

// encodeTokens packs ids as little-endian int32.
func encodeTokens(ids []int32) []byte {
	buf := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(id))
	}
	return buf
}

func decodeTokens(buf []byte) ([]int32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(buf))
	}
	ids := make([]int32, len(buf)/4)
	for i := range ids {
		ids[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return ids, nil
}
