package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoad_EmbeddedSchema(t *testing.T) {
	got, err := load(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].name != "001_token_directory.sql" || got[1].name != "002_refresh_runs.sql" {
		t.Errorf("unexpected migration order: %s, %s", got[0].name, got[1].name)
	}
	for _, m := range got {
		if !strings.Contains(m.sql, "IF NOT EXISTS") {
			t.Errorf("%s is not idempotent", m.name)
		}
	}
}

func TestLoad_SkipsBlankAndForeignFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/010_b.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS b ();")},
		"sql/002_a.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS a ();")},
		"sql/003_nop.sql": {Data: []byte("  \n")},
		"sql/README.md":   {Data: []byte("notes")},
	}

	got, err := load(fsys, "sql")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].name != "002_a.sql" || got[1].name != "010_b.sql" {
		t.Errorf("unexpected order: %s, %s", got[0].name, got[1].name)
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := load(fstest.MapFS{}, "postgres"); err == nil {
		t.Error("expected error for missing directory")
	}
}
