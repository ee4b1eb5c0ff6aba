package docstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.trai.ch/zerr"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenDatabase opens the sqlite file holding collection snapshots.
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1) // sqlite
	return db, nil
}

// Migrate applies the embedded schema migrations to db.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return zerr.Wrap(err, "failed to read migrations")
	}
	defer src.Close()
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return zerr.Wrap(err, "failed to create migration driver")
	}
	// m.Close would also close db, which the store keeps using.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return zerr.Wrap(err, "failed to create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return zerr.Wrap(err, "failed to migrate")
	}
	return nil
}
