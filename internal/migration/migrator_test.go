package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appconfig "github.com/Priyanshiguptaaa/mvp-beta-bss/config"

	_ "modernc.org/sqlite" // pure-Go reader for inspecting the migrated schema
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/echosys?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "echosys", "u", "p", "disable"))
	assert.Equal(t, "postgres://u:p@db:5432/echosys?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "echosys", "u", "p", ""))
	assert.Equal(t, "u:p@tcp(db:3306)/echosys?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "echosys", "u", "p", ""))
	assert.Equal(t, "file:/var/lib/echosys.db?mode=rwc&_foreign_keys=on",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/echosys.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "", "", "", ""))
}

// 三种方言的迁移文件版本与名称必须一致
func TestEmbeddedMigrations_DialectsAligned(t *testing.T) {
	pg, err := availableMigrations(DatabaseTypePostgres)
	require.NoError(t, err)
	require.NotEmpty(t, pg)

	for i := 1; i < len(pg); i++ {
		assert.Greater(t, pg[i].version, pg[i-1].version)
	}
	for _, dt := range []DatabaseType{DatabaseTypeMySQL, DatabaseTypeSQLite} {
		other, err := availableMigrations(dt)
		require.NoError(t, err)
		assert.Equal(t, pg, other, dt)
	}

	_, err = availableMigrations("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = NewMigratorFromDatabaseConfig(appconfig.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func newSQLiteMigrator(t *testing.T) (*DefaultMigrator, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "echosys.db")
	m, err := NewMigratorFromDatabaseConfig(appconfig.DatabaseConfig{Driver: "sqlite", Name: dbPath}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dbPath
}

func tableNames(t *testing.T, dbPath string) []string {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestMigrator_SQLite_UpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	m, dbPath := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx)) // no change is not an error

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	assert.Equal(t, []string{
		"incidents", "metric_summaries", "rca_details", "schema_migrations",
		"test_results", "test_schedules", "traces",
	}, tableNames(t, dbPath))

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.Equal(t, []string{"metric_summaries", "schema_migrations", "traces"}, tableNames(t, dbPath))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
	assert.Equal(t, "create_tests_and_incidents", statuses[1].Name)

	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_CancelledContext(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	m, _ := newSQLiteMigrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Up(ctx), context.Canceled)
	assert.ErrorIs(t, m.Force(ctx, 1), context.Canceled)
}

func TestCLI_Output(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	color.NoColor = true
	m, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.RunSteps(ctx, 1))
	assert.Contains(t, buf.String(), "Current version: 1")

	buf.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	out := buf.String()
	assert.Contains(t, out, "000001")
	assert.Contains(t, out, "create_traces")
	assert.Contains(t, out, "Applied")
	assert.Contains(t, out, "Pending")
	assert.Contains(t, out, "Total: 2, Applied: 1, Pending: 1")

	buf.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, buf.String(), "Current version: 2")

	buf.Reset()
	require.NoError(t, cli.RunGoto(ctx, 1))
	assert.Contains(t, buf.String(), "Current version: 1")
}
