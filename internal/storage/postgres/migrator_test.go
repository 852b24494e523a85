package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].String() != "0001_init" || migrations[1].String() != "0002_more" {
		t.Fatalf("unexpected order: %s, %s", migrations[0], migrations[1])
	}
	if !strings.Contains(migrations[0].UpSQL, "CREATE TABLE a") || !strings.Contains(migrations[0].DownSQL, "DROP TABLE a") {
		t.Fatalf("unexpected bodies: %+v", migrations[0])
	}
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantErr: "no migration files",
		},
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE a (id INT);")},
			},
			wantErr: "both up and down",
		},
		{
			name: "invalid file name",
			fsys: fstest.MapFS{
				"sql/migrations/init.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("  \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			wantErr: "is empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			wantErr: "name mismatch",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadMigrationsFromFS(tt.fsys)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEmbeddedMigrationsAreComplete(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 embedded migrations, got %d", len(migrations))
	}
	for i, mg := range migrations {
		if mg.Version != int64(i+1) {
			t.Fatalf("migration versions must be contiguous, got %s at position %d", mg, i)
		}
	}
}
