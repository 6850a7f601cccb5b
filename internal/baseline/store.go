// Package baseline implements the encrypted, persistent path→hash
// mapping that represents the trusted state of every protected file.
// Storage is a single-table SQLite database (WAL-journalled for crash
// durability), with both the path and hash columns stored as AES-GCM
// ciphertext and a deterministic path digest carried alongside for O(1)
// lookup — see spec.md §4.3 and §9's "Encrypted-path uniqueness" note.
package baseline

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultDBPath and DefaultKeyPath are the conventional on-disk names
// from spec.md §6.
const (
	DefaultDBPath  = "integrity.db"
	DefaultKeyPath = "secret.key"
)

// Store is the encrypted baseline mapping. All mutating methods are safe
// to call concurrently: each is one statement or one transaction, and
// concurrent writers are ordered by SQLite's own locking (with a 5s busy
// timeout). Store holds no write mutex of its own, and the engine and
// classifier call it directly without one, so a sequence of calls is
// not atomic as a whole.
type Store struct {
	db     *sql.DB
	cipher *cipherBox
}

// Open creates or opens the SQLite database at dbPath, loading (or
// generating) the AES key at keyPath.
func Open(dbPath, keyPath string) (*Store, error) {
	key, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return nil, err
	}
	box, err := newCipherBox(key)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, cipher: box}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id          INTEGER PRIMARY KEY,
			path_digest TEXT UNIQUE NOT NULL,
			path_ct     TEXT NOT NULL,
			hash_ct     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_files_path_digest ON files(path_digest);
	`)
	return err
}

// LoadAll decrypts every row and returns the path→hash mapping. Rows
// whose ciphertext fails to decrypt (corruption, key mismatch) are
// skipped rather than failing the whole load, per spec.md §7.
func (s *Store) LoadAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT path_ct, hash_ct FROM files`)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var pathCT, hashCT string
		if err := rows.Scan(&pathCT, &hashCT); err != nil {
			continue
		}
		path, err := s.cipher.decrypt(pathCT)
		if err != nil {
			continue
		}
		hash, err := s.cipher.decrypt(hashCT)
		if err != nil {
			continue
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// Get looks up the baselined hash for path. ok is false if no record
// exists, or if its row failed to decrypt (treated the same as absent,
// per spec.md §7's "decryption failure: skip the row").
func (s *Store) Get(path string) (hash string, ok bool) {
	var pathCT, hashCT string
	err := s.db.QueryRow(`SELECT path_ct, hash_ct FROM files WHERE path_digest = ?`, pathDigest(path)).
		Scan(&pathCT, &hashCT)
	if err != nil {
		return "", false
	}
	h, err := s.cipher.decrypt(hashCT)
	if err != nil {
		return "", false
	}
	return h, true
}

// Put upserts a single (path, hash) pair. Because path_digest is a
// deterministic function of the plaintext path (unlike the
// nondeterministic ciphertext columns), "INSERT OR REPLACE" on that
// column enforces the one-row-per-path invariant without a decrypt scan.
func (s *Store) Put(path, hash string) error {
	return s.putTx(s.db, path, hash)
}

// putTx executes the upsert against any *sql.DB or *sql.Tx.
func (s *Store) putTx(execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}, path, hash string) error {
	pathCT, err := s.cipher.encrypt(path)
	if err != nil {
		return fmt.Errorf("encrypting path: %w", err)
	}
	hashCT, err := s.cipher.encrypt(hash)
	if err != nil {
		return fmt.Errorf("encrypting hash: %w", err)
	}
	_, err = execer.Exec(
		`INSERT INTO files (path_digest, path_ct, hash_ct) VALUES (?, ?, ?)
		 ON CONFLICT(path_digest) DO UPDATE SET path_ct = excluded.path_ct, hash_ct = excluded.hash_ct`,
		pathDigest(path), pathCT, hashCT,
	)
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}
	return nil
}

// PutBatch upserts every pair in a single transaction.
func (s *Store) PutBatch(pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for path, hash := range pairs {
		if err := s.putTx(tx, path, hash); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Delete removes the row for path, if any, keyed by its deterministic
// digest (an O(1) lookup, in contrast to the linear decrypt-scan spec.md
// describes as the fallback strategy).
func (s *Store) Delete(path string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE path_digest = ?`, pathDigest(path))
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Clear removes every row.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM files`)
	if err != nil {
		return fmt.Errorf("clearing files: %w", err)
	}
	return nil
}
