// Package sqlitestore is a sqlite-backed credstore driver. It suits desktop
// installs of the console tooling where a single durable file per machine is
// preferable to loose JSON files.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/quietgrove/backoffice/pkg/credstore"
	"github.com/quietgrove/backoffice/pkg/credstore/sqlitestore/migrations"
)

// Store persists the credential bundle as three rows in a key-value table,
// replaced inside one transaction per save.
type Store struct {
	db *sql.DB
}

var _ credstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// applyMigrations brings the schema up to date using the embedded migration
// files.
func (s *Store) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlitestore: migration driver: %w", err)
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return fmt.Errorf("sqlitestore: migration source: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrate instance: %w", err)
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlitestore: migrations failed: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, creds *credstore.Credentials) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO credentials (k, v, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT (k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`

	rows := map[string]string{
		credstore.KeyAccessToken:  creds.AccessToken,
		credstore.KeyRefreshToken: creds.RefreshToken,
		credstore.KeyUserProfile:  string(creds.Profile),
	}
	for k, v := range rows {
		if _, err := tx.ExecContext(ctx, upsert, k, v); err != nil {
			return fmt.Errorf("sqlitestore: save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context) (*credstore.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load failed: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 3)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan failed: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: load failed: %w", err)
	}

	if values[credstore.KeyAccessToken] == "" {
		return nil, credstore.ErrNotFound
	}

	creds := &credstore.Credentials{
		AccessToken:  values[credstore.KeyAccessToken],
		RefreshToken: values[credstore.KeyRefreshToken],
	}
	if p := values[credstore.KeyUserProfile]; p != "" {
		creds.Profile = []byte(p)
	}
	return creds, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("sqlitestore: clear failed: %w", err)
	}
	return nil
}
