// Package store persists user records and aggregate counters in SQLite.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	_ "modernc.org/sqlite"
)

// User is one bot user. Token and YandexUID are empty until the user links
// a streaming account.
type User struct {
	ID        int64
	YandexUID string
	Token     string
}

// Store wraps the SQLite database. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	key *[32]byte // token encryption key; nil stores tokens in plaintext
}

// Open opens (or creates) the database at path. When key is 32 bytes long,
// account tokens are encrypted at rest with it.
func Open(path string, key []byte) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode so bot handlers and the admin API can read concurrently.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id       INTEGER PRIMARY KEY,
		ym_id    TEXT DEFAULT '',
		ym_token TEXT DEFAULT ''
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS stats (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if len(key) > 0 {
		if len(key) != 32 {
			db.Close()
			return nil, fmt.Errorf("store: token key must be 32 bytes, got %d", len(key))
		}
		s.key = new([32]byte)
		copy(s.key[:], key)
	}
	return s, nil
}

// EnsureUser returns the user record, creating an empty one on first contact.
// The second return value reports whether the record was just created.
func (s *Store) EnsureUser(id int64) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u User
	var token string
	err := s.db.QueryRow(`SELECT id, ym_id, ym_token FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.YandexUID, &token)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO users (id) VALUES (?)`, id); err != nil {
			return User{}, false, err
		}
		return User{ID: id}, true, nil
	case err != nil:
		return User{}, false, err
	}
	u.Token, err = s.openToken(token)
	if err != nil {
		return User{}, false, err
	}
	return u, false, nil
}

// SetToken stores the account token and cached streaming-service uid.
func (s *Store) SetToken(id int64, token, yandexUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.sealToken(token)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO users (id, ym_id, ym_token) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ym_id=excluded.ym_id, ym_token=excluded.ym_token`,
		id, yandexUID, sealed)
	return err
}

// ClearToken wipes the stored token and uid for a user.
func (s *Store) ClearToken(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE users SET ym_id = '', ym_token = '' WHERE id = ?`, id)
	return err
}

// AllUserIDs returns every known user id, for admin broadcasts.
func (s *Store) AllUserIDs() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementCounter adds delta to a named aggregate counter.
func (s *Store) IncrementCounter(name string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO stats (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`, name, delta)
	return err
}

// Counters returns all aggregate counters.
func (s *Store) Counters() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, value FROM stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sealToken encrypts a token for storage when a key is configured. The nonce
// is prepended to the box and the whole blob is base64-encoded.
func (s *Store) sealToken(token string) (string, error) {
	if s.key == nil || token == "" {
		return token, nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) openToken(stored string) (string, error) {
	if s.key == nil || stored == "" {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < 24 {
		return "", fmt.Errorf("store: stored token is corrupt")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	token, ok := secretbox.Open(nil, raw[24:], &nonce, s.key)
	if !ok {
		return "", fmt.Errorf("store: stored token does not decrypt with configured key")
	}
	return string(token), nil
}
