package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// dialectInfo maps a config database driver onto the database/sql
// driver name, the goose dialect, and the embedded migrations dir.
func dialectInfo(driver string) (sqlDriver, gooseDialect, dir string, err error) {
	switch driver {
	case "postgres", "":
		return "pgx", "postgres", "migrations/postgres", nil
	case "sqlite":
		return "sqlite3", "sqlite3", "migrations/sqlite", nil
	default:
		return "", "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Run applies all pending migrations using goose. It opens and closes
// its own DB handle so it is independent of the app store.
func Run(driver, dsn string) error {
	sqlDriver, _, _, err := dialectInfo(driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	return Up(db, driver)
}

// Up applies pending migrations on an existing handle. Tests use this
// against in-memory sqlite databases, where opening a second handle
// would migrate a different database.
func Up(db *sql.DB, driver string) error {
	_, dialect, dir, err := dialectInfo(driver)
	if err != nil {
		return err
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// SQLDriverName resolves the database/sql driver name for a config
// database driver, shared with main when opening the app pool.
func SQLDriverName(driver string) (string, error) {
	name, _, _, err := dialectInfo(driver)
	return name, err
}
