// Package unitcache persists compiled bytecode units in a sqlite
// database, keyed by content hash. Embedders hash the source they are
// about to compile, look the hash up, and skip compilation on a hit.
package unitcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/fennec/bytecode"
)

// ErrNotFound indicates the requested unit is not cached.
var ErrNotFound = errors.New("unit not found")

// Key is the SHA-256 content hash a cached unit is addressed by.
type Key [32]byte

// KeyOf hashes arbitrary bytes (source text or container bytes) into a
// cache key.
func KeyOf(data []byte) Key {
	return sha256.Sum256(data)
}

// ParseKey decodes the hex form of a key.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("unitcache: parse key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("unitcache: parse key: %d hex bytes, want %d", len(raw), len(k))
	}
	copy(k[:], raw)
	return k, nil
}

// String returns the key in hex.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Store is a content-addressed disk cache of serialized unit containers.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Stats summarizes the cache contents.
type Stats struct {
	Units int
	Bytes int64
	Path  string
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		key TEXT PRIMARY KEY,
		container BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.dbPath }

// Put stores container bytes under key, replacing any previous entry.
func (s *Store) Put(key Key, container []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO units (key, container, created_at) VALUES (?, ?, ?)",
		key.String(), container, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("caching unit: %w", err)
	}
	return nil
}

// PutUnit serializes a unit and stores it under the hash of its own
// container bytes, returning the key.
func (s *Store) PutUnit(u *bytecode.Unit) (Key, error) {
	data, err := bytecode.Encode(u)
	if err != nil {
		return Key{}, err
	}
	key := KeyOf(data)
	if err := s.Put(key, data); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Get retrieves the container bytes stored under key.
func (s *Store) Get(key Key) ([]byte, error) {
	var container []byte
	err := s.db.QueryRow("SELECT container FROM units WHERE key = ?", key.String()).Scan(&container)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying unit: %w", err)
	}
	return container, nil
}

// GetUnit retrieves and decodes the unit stored under key. The
// container is validated on the way out, so a corrupted cache row
// surfaces as a decode error rather than a bad unit.
func (s *Store) GetUnit(key Key) (*bytecode.Unit, error) {
	data, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return bytecode.Decode(data)
}

// Has reports whether key is cached.
func (s *Store) Has(key Key) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM units WHERE key = ?", key.String()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying unit: %w", err)
	}
	return true, nil
}

// Delete removes the entry under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM units WHERE key = ?", key.String()); err != nil {
		return fmt.Errorf("deleting unit: %w", err)
	}
	return nil
}

// Keys returns every cached key, oldest first.
func (s *Store) Keys() ([]Key, error) {
	rows, err := s.db.Query("SELECT key FROM units ORDER BY created_at, key")
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var hexKey string
		if err := rows.Scan(&hexKey); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		k, err := ParseKey(hexKey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Stats reports entry count and total payload size.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Path: s.dbPath}
	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(LENGTH(container)), 0) FROM units").
		Scan(&st.Units, &st.Bytes)
	if err != nil {
		return st, fmt.Errorf("querying stats: %w", err)
	}
	return st, nil
}
