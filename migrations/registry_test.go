package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	provisioning "github.com/goliatone/go-provisioning"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestFilesystems_AcceptsFlatSource(t *testing.T) {
	source := fstest.MapFS{
		"00001_custom.up.sql":        {Data: []byte("SELECT 1;")},
		"sqlite/00001_custom.up.sql": {Data: []byte("SELECT 1;")},
	}
	filesystems, err := Filesystems(source)
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if filesystems[0].Path != "." || filesystems[1].Path != "sqlite" {
		t.Fatalf("unexpected paths %q %q", filesystems[0].Path, filesystems[1].Path)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var label string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, sourceLabel string, _ fs.FS) error {
		calls = append(calls, dialect)
		label = sourceLabel
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if label != "go-provisioning" {
		t.Fatalf("expected default source label, got %q", label)
	}
}

func TestRegister_PropagatesRegisterErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected register error, got %v", err)
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := provisioning.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_provisioning_core.up.sql",
		"data/sql/migrations/00001_provisioning_core.down.sql",
		"data/sql/migrations/sqlite/00001_provisioning_core.up.sql",
		"data/sql/migrations/sqlite/00001_provisioning_core.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreMigration_EnforcesSingleLiveLease(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-live-lease?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(provisioning.GetCoreMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_provisioning_core.up.sql"); err != nil {
		t.Fatalf("apply up migration: %v", err)
	}

	insert := `INSERT INTO provisioning_leases (id, project_id, store_type, status) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "lease-1", "prj-1", "relational", "released"); err != nil {
		t.Fatalf("insert released lease: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "lease-2", "prj-1", "relational", "ready"); err != nil {
		t.Fatalf("insert live lease beside released one: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "lease-3", "prj-1", "relational", "requested"); err == nil {
		t.Fatalf("expected second live lease to violate the partial unique index")
	}
	if _, err := db.ExecContext(ctx, insert, "lease-4", "prj-1", "keyvalue", "requested"); err != nil {
		t.Fatalf("insert live lease for another store type: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "lease-5", "prj-1", "object", "bogus"); err == nil {
		t.Fatalf("expected unknown status to violate the check constraint")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_provisioning_core.down.sql"); err != nil {
		t.Fatalf("apply down migration: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'provisioning_%'`,
	).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to drop provisioning tables, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{"sqlite3": DialectSQLite, " Postgres ": DialectPostgres, "pgx": DialectPostgres}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}
