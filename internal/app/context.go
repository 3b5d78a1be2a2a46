package app

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"intake/internal/config"
	"intake/internal/db"
	"intake/internal/engine"
	"intake/internal/migrate"
	"intake/internal/repo"
)

// Context bundles the opened store and engine for one workspace.
type Context struct {
	Config *config.Config
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Log    zerolog.Logger
}

// Open connects to the configured database, applies migrations and builds the
// engine on top of it.
func Open(cfg *config.Config, log zerolog.Logger) (*Context, error) {
	conn, err := db.Open(db.Config{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		Workspace: cfg.Database.Workspace,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	dialect := db.Dialect(cfg.Database.Driver)
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.New(conn, dialect)
	return &Context{
		Config: cfg,
		DB:     conn,
		Repo:   r,
		Engine: engine.New(r, log.With().Str("component", "engine").Logger()),
		Log:    log,
	}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if cfg.Log.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
