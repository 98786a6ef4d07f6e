package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// advisory lock key for migrations, arbitrary but stable
const migrationLockKey = 7420551

// migration is one versioned pair of SQL files on disk.
type migration struct {
	version  string
	name     string
	upFile   string
	downFile string
}

// Migrator applies SQL migration files in version order. File naming follows
// the golang-migrate convention: {version}_{name}.up.sql / .down.sql.
// A session advisory lock serializes concurrent service instances racing to
// migrate the same database.
type Migrator struct {
	db  *sql.DB
	dir string
}

func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	conn, unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.ensureHistoryTable(ctx, conn); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	migrations, err := m.scan()
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if applied[mig.version] {
			continue
		}
		if err := m.apply(ctx, conn, mig); err != nil {
			return err
		}
		log.Printf("INFO: migration %s_%s applied", mig.version, mig.name)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	conn, unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.ensureHistoryTable(ctx, conn); err != nil {
		return err
	}

	var version string
	err = conn.QueryRowContext(ctx, `
		SELECT version FROM public.migration_history
		ORDER BY version DESC LIMIT 1
	`).Scan(&version)
	if err == sql.ErrNoRows {
		log.Println("INFO: migration history is empty, nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read migration history: %w", err)
	}

	migrations, err := m.scan()
	if err != nil {
		return err
	}
	var target *migration
	for i := range migrations {
		if migrations[i].version == version {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("version %s is recorded as applied but has no file in %s", version, m.dir)
	}
	if target.downFile == "" {
		return fmt.Errorf("migration %s_%s has no down file", target.version, target.name)
	}

	body, err := os.ReadFile(filepath.Join(m.dir, target.downFile))
	if err != nil {
		return fmt.Errorf("read %s: %w", target.downFile, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("run %s: %w", target.downFile, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM public.migration_history WHERE version = $1`, version); err != nil {
		return fmt.Errorf("unrecord version %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("INFO: migration %s_%s rolled back", target.version, target.name)
	return nil
}

// lock takes the migration advisory lock on a dedicated connection. The lock
// is session-scoped, so the same connection must stay open until unlock.
func (m *Migrator) lock(ctx context.Context) (*sql.Conn, func(), error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	unlock := func() {
		conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
		conn.Close()
	}
	return conn, unlock, nil
}

func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, mig migration) error {
	body, err := os.ReadFile(filepath.Join(m.dir, mig.upFile))
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.upFile, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("run %s: %w", mig.upFile, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO public.migration_history (version, name) VALUES ($1, $2)
	`, mig.version, mig.name); err != nil {
		return fmt.Errorf("record version %s: %w", mig.version, err)
	}
	return tx.Commit()
}

func (m *Migrator) ensureHistoryTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.migration_history (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure migration_history: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM public.migration_history`)
	if err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// scan reads the migrations directory and pairs up/down files by version.
func (m *Migrator) scan() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", m.dir, err)
	}

	byVersion := make(map[string]*migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var down bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
		case strings.HasSuffix(name, ".down.sql"):
			down = true
		default:
			continue
		}

		version, base, ok := splitMigrationName(name)
		if !ok {
			return nil, fmt.Errorf("malformed migration filename %q", name)
		}
		mig := byVersion[version]
		if mig == nil {
			mig = &migration{version: version, name: base}
			byVersion[version] = mig
		}
		if down {
			mig.downFile = name
		} else {
			mig.upFile = name
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.upFile == "" {
			return nil, fmt.Errorf("migration %s has a down file but no up file", mig.version)
		}
		migrations = append(migrations, *mig)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// splitMigrationName parses "000001_event_log.up.sql" into ("000001",
// "event_log", true).
func splitMigrationName(filename string) (version, name string, ok bool) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(filename, ".up.sql"), ".down.sql")
	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
