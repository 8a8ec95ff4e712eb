package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteCache is a pure-Go, cgo-free read-through cache for index
// lookups, mirroring the teacher's hybrid-backend philosophy of
// keeping files/refs as the source of truth with a SQL cache for
// speed (internal/storage.Backend in the teacher repo).
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (creating if absent) a sqlite database at path
// and ensures the cache table exists.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index cache %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS index_cache (
	kind TEXT NOT NULL,
	key TEXT NOT NULL,
	process_name TEXT NOT NULL,
	PRIMARY KEY (kind, key)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index_cache table: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Get implements Cache.
func (c *SQLiteCache) Get(kind Kind, key string) (string, bool) {
	var processName string
	err := c.db.QueryRow(
		`SELECT process_name FROM index_cache WHERE kind = ? AND key = ?`,
		string(kind), key,
	).Scan(&processName)
	if err != nil {
		return "", false
	}
	return processName, true
}

// Set implements Cache.
func (c *SQLiteCache) Set(kind Kind, key, processName string) error {
	_, err := c.db.Exec(
		`INSERT INTO index_cache (kind, key, process_name) VALUES (?, ?, ?)
		 ON CONFLICT(kind, key) DO UPDATE SET process_name = excluded.process_name`,
		string(kind), key, processName,
	)
	return err
}

// Delete implements Cache.
func (c *SQLiteCache) Delete(kind Kind, key string) error {
	_, err := c.db.Exec(`DELETE FROM index_cache WHERE kind = ? AND key = ?`, string(kind), key)
	return err
}
