package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestUpCreatesSyncTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Up(context.Background(), sqlDB, "sqlite"))
	// second run is a no-op
	require.NoError(t, Up(context.Background(), sqlDB, "sqlite"))

	for _, table := range []string{
		"pending_transactions",
		"mutation_queue",
		"mutation_dead_letters",
		"settings",
		"cached_products",
		"cached_customers",
	} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestDialect(t *testing.T) {
	d, err := Dialect("sqlite")
	require.NoError(t, err)
	require.Equal(t, "sqlite3", d)

	d, err = Dialect("postgres")
	require.NoError(t, err)
	require.Equal(t, "postgres", d)

	_, err = Dialect("mysql")
	require.Error(t, err)
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateEmbedded())

	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_sync_queues.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS pending_transactions",
		"CREATE TABLE IF NOT EXISTS mutation_queue",
		"CREATE TABLE IF NOT EXISTS mutation_dead_letters",
		"CREATE INDEX IF NOT EXISTS idx_pending_transactions_status_created",
	} {
		require.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Loyalty Tiers!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_loyalty_tiers.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "  ")
	require.Error(t, err)
}

func TestCreateRejectsExistingVersion(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	_, err := createAt(dir, "add_tills", at)
	require.NoError(t, err)
	_, err = createAt(dir, "add_tills", at)
	require.ErrorContains(t, err, "already exists")
}

func TestValidateRejectsPostgresOnlySQL(t *testing.T) {
	fsys := fstest.MapFS{
		"20261002000000_add_audit.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nCREATE TABLE audit (id SERIAL PRIMARY KEY, body JSONB);\n-- +goose Down\nDROP TABLE audit;\n",
		)},
	}
	require.ErrorContains(t, Validate(fsys, "."), "sqlite does not support")

	fsys = fstest.MapFS{"bad-name.sql": &fstest.MapFile{Data: []byte("-- +goose Up\n-- +goose Down\n")}}
	require.ErrorContains(t, Validate(fsys, "."), "invalid migration filename")
}
