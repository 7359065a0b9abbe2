// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const cacheDBFile = "uploads.db"

// MediaCache maps the content hash of an uploaded file to the media id and
// URL the WeChat API assigned it, so re-publishing a paper never re-uploads
// unchanged figures. Backed by SQLite under the cache directory.
type MediaCache struct {
	db *sql.DB
}

// OpenMediaCache opens or creates the upload cache database at
// dir/uploads.db, creating the schema if needed.
func OpenMediaCache(dir string) (*MediaCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, cacheDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening upload cache: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS uploads (
		sha256 TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		url TEXT NOT NULL,
		uploaded_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating upload cache schema: %w", err)
	}

	return &MediaCache{db: db}, nil
}

// Close releases the database connection.
func (m *MediaCache) Close() error {
	return m.db.Close()
}

// Lookup returns the cached media id and URL for a content hash.
// ok is false when the hash has never been uploaded.
func (m *MediaCache) Lookup(sha string) (mediaID, url string, ok bool, err error) {
	row := m.db.QueryRow(`SELECT media_id, url FROM uploads WHERE sha256 = ?`, sha)
	switch err := row.Scan(&mediaID, &url); {
	case errors.Is(err, sql.ErrNoRows):
		return "", "", false, nil
	case err != nil:
		return "", "", false, fmt.Errorf("querying upload cache: %w", err)
	}
	return mediaID, url, true, nil
}

// Store records a completed upload, replacing any previous row for the hash.
func (m *MediaCache) Store(sha, mediaID, url string) error {
	_, err := m.db.Exec(
		`INSERT OR REPLACE INTO uploads (sha256, media_id, url) VALUES (?, ?, ?)`,
		sha, mediaID, url,
	)
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

// FileSHA256 hashes a file's contents for cache keying.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
