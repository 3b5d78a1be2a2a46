package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"intake/internal/db"
	"intake/internal/domain"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// lockKey serializes concurrent migrators on one postgres database.
const lockKey = 7_243_901_118

// Migration is one versioned schema step. A file named
// NNNN_name.<dialect>.sql replaces NNNN_name.sql for that dialect.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Applied is a row of the schema_migrations history.
type Applied struct {
	Version   int
	Name      string
	AppliedAt string
}

func loadMigrations(dialect string) ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	shared := map[int]Migration{}
	specific := map[int]Migration{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		target := shared
		base := strings.TrimSuffix(f.Name(), ".sql")
		if i := strings.LastIndex(base, "."); i >= 0 {
			if base[i+1:] != dialect {
				continue
			}
			target = specific
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		if prev, ok := target[v]; ok {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev.Name, f.Name(), v)
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		target[v] = Migration{Version: v, Name: f.Name(), UpSQL: string(data)}
	}
	for v, m := range specific {
		shared[v] = m
	}
	migrations := make([]Migration, 0, len(shared))
	for _, m := range shared {
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies pending embedded migrations in order inside one
// transaction and records each in schema_migrations.
func Migrate(conn *sql.DB, dialect string) error {
	migrations, err := loadMigrations(dialect)
	if err != nil {
		return err
	}
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if dialect == db.DialectPostgres {
		if _, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, int64(lockKey)); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
	}
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations(
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	record := db.Rebind(dialect, `INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)`)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(record, m.Version, m.Name, time.Now().UTC().Format(domain.TimeLayout)); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
	}
	return tx.Commit()
}

// History lists applied migrations, oldest first.
func History(conn *sql.DB) ([]Applied, error) {
	rows, err := conn.Query(`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Latest returns the highest embedded migration version for dialect.
func Latest(dialect string) (int, error) {
	migrations, err := loadMigrations(dialect)
	if err != nil {
		return 0, err
	}
	if len(migrations) == 0 {
		return 0, nil
	}
	return migrations[len(migrations)-1].Version, nil
}
