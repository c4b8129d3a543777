// Package store keeps encoded class files in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/classvm/vm"
)

var log = commonlog.GetLogger("classvm.store")

// ErrCorrupt indicates a stored class whose checksum no longer matches.
var ErrCorrupt = errors.New("stored class is corrupt")

// Entry describes one stored class.
type Entry struct {
	Name      string
	Size      int
	CRC       uint32
	UpdatedAt time.Time
}

// SQLiteStore is a class repository in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		crc INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened class store %s", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores an encoded class under name, replacing any previous version.
// The data must decode as a class file named name.
func (s *SQLiteStore) Put(name string, data []byte) error {
	if err := checkClass(name, data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO classes (name, data, crc, updated_at) VALUES (?, ?, ?, ?)",
		name, data, int64(crc32.ChecksumIEEE(data)), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving class %s: %w", name, err)
	}
	log.Debugf("stored %s (%d bytes)", name, len(data))
	return nil
}

// PutAll stores many classes in one transaction.
func (s *SQLiteStore) PutAll(ctx context.Context, classes map[string][]byte) error {
	names := make([]string, 0, len(classes))
	for name, data := range classes {
		if err := checkClass(name, data); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO classes (name, data, crc, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, name := range names {
		data := classes[name]
		if _, err := stmt.ExecContext(ctx, name, data, int64(crc32.ChecksumIEEE(data)), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("saving class %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	log.Infof("stored %d classes in %s", len(names), s.path)
	return nil
}

func checkClass(name string, data []byte) error {
	cf, err := vm.ReadClassFile(data)
	if err != nil {
		return fmt.Errorf("class %s: %w", name, err)
	}
	got, err := cf.Name()
	if err != nil {
		return fmt.Errorf("class %s: %w", name, err)
	}
	if got != name {
		return fmt.Errorf("class %s: data defines %s", name, got)
	}
	return nil
}

// Get returns the encoded class stored under name. A missing class is
// reported with vm.ErrClassNotFound.
func (s *SQLiteStore) Get(name string) ([]byte, error) {
	var (
		data []byte
		crc  int64
	)
	err := s.db.QueryRow("SELECT data, crc FROM classes WHERE name = ?", name).Scan(&data, &crc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", name, vm.ErrClassNotFound)
		}
		return nil, fmt.Errorf("querying class %s: %w", name, err)
	}
	if crc32.ChecksumIEEE(data) != uint32(crc) {
		log.Errorf("checksum mismatch for %s in %s", name, s.path)
		return nil, fmt.Errorf("%s: %w", name, ErrCorrupt)
	}
	return data, nil
}

// List returns every stored class ordered by name.
func (s *SQLiteStore) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, length(data), crc, updated_at FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			crc     int64
			updated int64
		)
		if err := rows.Scan(&e.Name, &e.Size, &crc, &updated); err != nil {
			return nil, fmt.Errorf("scanning class row: %w", err)
		}
		e.CRC = uint32(crc)
		e.UpdatedAt = time.UnixMilli(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Names implements the name listing used by classpath scans.
func (s *SQLiteStore) Names() ([]string, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Delete removes a class. Deleting a missing class is not an error.
func (s *SQLiteStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM classes WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting class %s: %w", name, err)
	}
	return nil
}

// Source returns the store as a vm.ClassSource.
func (s *SQLiteStore) Source() vm.ClassSource {
	return storeSource{s}
}

type storeSource struct {
	store *SQLiteStore
}

// FindClass implements vm.ClassSource.
func (s storeSource) FindClass(name string) ([]byte, error) {
	return s.store.Get(name)
}
