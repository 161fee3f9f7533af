package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"

	"github.com/blackroad/metricboard/pkg/types"
)

// RegistryConfig configures the dashboard registry.
type RegistryConfig struct {
	// Path to the SQLite database file
	Path string

	// BusyTimeout is the lock acquisition timeout in milliseconds
	BusyTimeout int
}

// DefaultRegistryConfig returns default registry configuration
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Path:        "dashboards.db",
		BusyTimeout: 5000,
	}
}

// Registry persists dashboards in SQLite. Dashboards are stored as
// their exported Grafana documents keyed by id, so the database stays
// readable with standard SQLite tools.
type Registry struct {
	db *sql.DB
	mu sync.RWMutex

	saveStmt   *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewRegistry opens (and if needed initializes) a dashboard registry
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Path == "" {
		cfg.Path = "dashboards.db"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, types.NewStorageError("open registry", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, types.NewStorageError("init registry schema", err)
	}
	if err := r.prepareStatements(); err != nil {
		db.Close()
		return nil, types.NewStorageError("prepare registry statements", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS dashboards (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			document   TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func (r *Registry) prepareStatements() error {
	var err error
	if r.saveStmt, err = r.db.Prepare(`
		INSERT INTO dashboards (id, title, document, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			document = excluded.document,
			updated_at = excluded.updated_at
	`); err != nil {
		return err
	}
	if r.getStmt, err = r.db.Prepare(`SELECT document FROM dashboards WHERE id = ?`); err != nil {
		return err
	}
	if r.deleteStmt, err = r.db.Prepare(`DELETE FROM dashboards WHERE id = ?`); err != nil {
		return err
	}
	return nil
}

// Save stores or replaces a dashboard
func (r *Registry) Save(ctx context.Context, d *Dashboard) error {
	doc, err := MarshalGrafana(d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.saveStmt.ExecContext(ctx, d.ID, d.Title, string(doc)); err != nil {
		return types.NewStorageError("save dashboard", err)
	}
	return nil
}

// Get loads a dashboard by id. A missing dashboard is reported as
// types.ErrNotFound, distinct from a storage failure.
func (r *Registry) Get(ctx context.Context, id string) (*Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var doc string
	err := r.getStmt.QueryRowContext(ctx, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dashboard %q: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, types.NewStorageError("load dashboard", err)
	}
	return UnmarshalGrafana([]byte(doc))
}

// DashboardInfo is a registry listing entry
type DashboardInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// List returns the ids and titles of all stored dashboards, ordered by
// title
func (r *Registry) List(ctx context.Context) ([]DashboardInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id, title FROM dashboards ORDER BY title`)
	if err != nil {
		return nil, types.NewStorageError("list dashboards", err)
	}
	defer rows.Close()

	var out []DashboardInfo
	for rows.Next() {
		var info DashboardInfo
		if err := rows.Scan(&info.ID, &info.Title); err != nil {
			return nil, types.NewStorageError("list dashboards", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("list dashboards", err)
	}
	return out, nil
}

// Delete removes a dashboard. Deleting an absent id is a no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.deleteStmt.ExecContext(ctx, id); err != nil {
		return types.NewStorageError("delete dashboard", err)
	}
	return nil
}

// Close closes the registry
func (r *Registry) Close() error {
	return r.db.Close()
}
