// Package blacklist implements a persistent, append-only set of farmer
// node ids to avoid. It is the only shared mutable resource across
// concurrent shard workers, so every access to its *sql.DB handle is
// serialized by a mutex and reads hand out immutable point-in-time
// snapshots.
//
// The backing store bootstraps its schema from an embed.FS of migration
// files rather than a flat file, so it can grow additional tables without
// a format migration of its own.
package blacklist

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// List is a persistent, append-only set of blacklisted farmer node ids.
type List struct {
	mu sync.Mutex
	db *sql.DB
}

// Open loads (creating if necessary) a List backed by a SQLite database
// under dir. dir defaults to the OS temp dir when empty.
func Open(dir string) (*List, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blacklist dir: %w", err)
	}

	dbPath := filepath.Join(dir, "blacklist.sqlite")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open blacklist db: %w", err)
	}

	if err := initSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &List{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, readErr := migrationsFS.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", path, readErr)
		}
		_, execErr := db.ExecContext(ctx, string(content))
		return execErr
	})
}

// Close releases the underlying database handle.
func (l *List) Close() error {
	return l.db.Close()
}

// Contains reports whether nodeID has been blacklisted.
func (l *List) Contains(nodeID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	row := l.db.QueryRow(`SELECT COUNT(1) FROM blacklisted_farmers WHERE node_id = ?`, nodeID)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("query blacklist: %w", err)
	}
	return n > 0, nil
}

// Add appends nodeID to the blacklist. Writes are durable before Add
// returns. Adding an already-present id is a no-op.
func (l *List) Add(nodeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`INSERT OR IGNORE INTO blacklisted_farmers(node_id) VALUES (?)`, nodeID)
	if err != nil {
		return fmt.Errorf("add %s to blacklist: %w", nodeID, err)
	}
	return nil
}

// Snapshot returns an immutable point-in-time copy of the blacklist.
// Callers must not mutate the returned slice.
func (l *List) Snapshot() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`SELECT node_id FROM blacklisted_farmers`)
	if err != nil {
		return nil, fmt.Errorf("snapshot blacklist: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blacklist row: %w", err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}
