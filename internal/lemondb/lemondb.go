// Package lemondb is the durable store of a photometric campaign: stars,
// filters, images, raw photometry, comparison sets and finished light
// curves, all in a single sqlite file.
//
// The pipeline is the only writer; the viewer opens the same file
// read-only. WAL journaling keeps readers on a consistent snapshot while a
// write is in flight, and every multi-row mutation runs in one transaction,
// so a reader sees either the fully-old or the fully-new value of a key.
package lemondb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sqlite handle. Methods map storage failures to
// *photom.StorageError and reference-data conflicts to the photom error
// taxonomy.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and brings its
// schema up to date.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	// busy_timeout makes concurrent writers queue instead of failing;
	// WAL lets the viewer read while the pipeline writes.
	pragmas := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = ON;
	`
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, storageErr("pragma", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return storageErr("migrations", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return storageErr("migrations", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return storageErr("migrations", err)
	}
	// Closing m would close the underlying connection; let it be
	// collected instead.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return storageErr("migrate up", err)
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return storageErr("migrate version", err)
	}
	monitoring.Debugf("lemondb schema at version %d", version)
	return nil
}

func storageErr(op string, err error) error {
	return &photom.StorageError{Op: op, Err: err}
}

// filterID resolves a passband to its row id inside q, creating the row on
// first sight. Filter identity is the (system, band) pair; there are no
// mutable fields to conflict on.
func filterID(q queryer, pb photom.Passband) (int64, error) {
	if _, err := q.Exec(
		`INSERT INTO photometric_filters (system, band) VALUES (?, ?)
		 ON CONFLICT (system, band) DO NOTHING`, pb.System, pb.Band); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow(
		`SELECT id FROM photometric_filters WHERE system = ? AND band = ?`,
		pb.System, pb.Band).Scan(&id)
	return id, err
}

// lookupFilterID is the read-only variant; missing filters report
// photom.ErrNotFound.
func lookupFilterID(q queryer, pb photom.Passband) (int64, error) {
	var id int64
	err := q.QueryRow(
		`SELECT id FROM photometric_filters WHERE system = ? AND band = ?`,
		pb.System, pb.Band).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("filter %s: %w", pb, photom.ErrNotFound)
	}
	return id, err
}

// queryer is the subset of *sql.DB / *sql.Tx the helpers need.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
