package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsGlob    = "sql/migrations/*.sql"
	migrationLockKey  = int64(52410331)
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationStatus описывает состояние схемы.
type MigrationStatus struct {
	Current int64
	Applied int
	Pending []string
}

// Migrator применяет встроенные SQL-миграции. Параллельные запуски
// сериализуются через pg_advisory_lock.
type Migrator struct {
	db     *sql.DB
	source fs.FS
	logger *log.Entry
}

// NewMigrator создаёт мигратор поверх встроенных файлов sql/migrations.
func NewMigrator(store *Store, logger *log.Entry) *Migrator {
	if logger == nil {
		logger = log.WithField("component", "migrator")
	}
	return &Migrator{db: store.DB(), source: migrationsFS, logger: logger}
}

// MigrateUp применяет up-миграции. steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	_, err := NewMigrator(s, nil).Up(ctx, steps)
	return err
}

// MigrateDown откатывает steps последних миграций.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	_, err := NewMigrator(s, nil).Down(ctx, steps)
	return err
}

// MigrationStatus возвращает состояние схемы.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	return NewMigrator(s, nil).Status(ctx)
}

// Up применяет до steps неприменённых миграций (0 значит все) и возвращает их имена.
func (m *Migrator) Up(ctx context.Context, steps int) ([]string, error) {
	var done []string
	err := m.withLock(ctx, func(conn *sql.Conn, all []migration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, mg := range all {
			if _, ok := applied[mg.Version]; ok {
				continue
			}
			if steps > 0 && len(done) >= steps {
				break
			}
			if err := m.apply(ctx, conn, mg, true); err != nil {
				return err
			}
			done = append(done, mg.String())
		}
		return nil
	})
	return done, err
}

// Down откатывает steps последних миграций. steps<=0 интерпретируется как 1 шаг.
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		steps = 1
	}

	var done []string
	err := m.withLock(ctx, func(conn *sql.Conn, all []migration) error {
		byVersion := make(map[int64]migration, len(all))
		for _, mg := range all {
			byVersion[mg.Version] = mg
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

		for _, v := range versions {
			if len(done) >= steps {
				break
			}
			mg, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("cannot rollback unknown migration version %d", v)
			}
			if err := m.apply(ctx, conn, mg, false); err != nil {
				return err
			}
			done = append(done, mg.String())
		}
		return nil
	})
	return done, err
}

// Status возвращает текущую версию, число применённых и список ожидающих миграций.
func (m *Migrator) Status(ctx context.Context) (MigrationStatus, error) {
	all, err := loadMigrationsFromFS(m.source)
	if err != nil {
		return MigrationStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := m.db.Conn(queryCtx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationStatus{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(queryCtx, conn)
	if err != nil {
		return MigrationStatus{}, err
	}

	status := MigrationStatus{Applied: len(applied)}
	for v := range applied {
		if v > status.Current {
			status.Current = v
		}
	}
	for _, mg := range all {
		if _, ok := applied[mg.Version]; !ok {
			status.Pending = append(status.Pending, mg.String())
		}
	}
	return status, nil
}

func (m *Migrator) withLock(ctx context.Context, fn func(conn *sql.Conn, all []migration) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	all, err := loadMigrationsFromFS(m.source)
	if err != nil {
		return err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn, all)
}

// apply выполняет одну миграцию и запись в schema_migrations в одной транзакции.
func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, mg migration, up bool) (err error) {
	direction, body := "down", mg.DownSQL
	if up {
		direction, body = "up", mg.UpSQL
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %s): %w", direction, mg, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, mg, err)
	}
	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`, mg.Version, mg.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mg.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, mg, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, mg, err)
	}

	m.logger.WithFields(log.Fields{"migration": mg.String(), "direction": direction}).Info("migration applied")
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]struct{}, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]struct{})
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		result[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return result, nil
}

// loadMigrationsFromFS собирает пары up/down из fsys и сортирует их по версии.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		matches := migrationFilePattern.FindStringSubmatch(base)
		if matches == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		name, direction := matches[2], matches[3]

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		mg, ok := byVersion[version]
		if !ok {
			mg = &migration{Version: version, Name: name}
			byVersion[version] = mg
		} else if mg.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, mg.Name, name)
		}

		target := &mg.UpSQL
		if direction == "down" {
			target = &mg.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	result := make([]migration, 0, len(byVersion))
	for _, mg := range byVersion {
		if mg.UpSQL == "" || mg.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", mg)
		}
		result = append(result, *mg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}
