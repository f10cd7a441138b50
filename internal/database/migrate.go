// Package database はPostgreSQLへの接続とスキーママイグレーションを扱う。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtyDatabase は前回のマイグレーションが途中で失敗したまま残っている場合のエラー。
var ErrDirtyDatabase = errors.New("database schema is dirty")

// MigrationResult はRunMigrationsの前後のスキーマバージョン。0は未適用を表す。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied は今回新たにマイグレーションが適用されたかを返す。
func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

// NewMigrator は埋め込みSQLを読むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用する。
// 最新の場合は何もしない。dirtyなスキーマにはErrDirtyDatabaseを返し、適用しない。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{From: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{From: from}, err
	}
	return MigrationResult{From: from, To: to}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d", ErrDirtyDatabase, v)
	}
	return v, nil
}
