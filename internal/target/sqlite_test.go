package target

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"users", "users"},
		{"order_items2", "order_items2"},
		{"Users", `"Users"`},
		{"order", `"order"`},
		{"2fa", `"2fa"`},
		{"first name", `"first name"`},
		{`we"ird`, `"we""ird"`},
		{"", `""`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := QuoteIdent(tt.in); got != tt.want {
				t.Errorf("QuoteIdent(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestInsertSQL(t *testing.T) {
	got := InsertSQL("select", 3)
	want := `INSERT INTO "select" VALUES (?, ?, ?)`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "out.db"), Options{BusyTimeoutMS: 1000})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecStatementsAndCounts(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	if got := filepath.Base(db.Path()); got != "out.db" {
		t.Errorf("Path() = %s, want the opened out.db", db.Path())
	}

	err := db.ExecStatements(ctx, []string{
		"CREATE TABLE items (id INTEGER NOT NULL, name TEXT)",
		"INSERT INTO items VALUES (1, 'a'), (2, 'b')",
	})
	if err != nil {
		t.Fatalf("ExecStatements: %v", err)
	}

	ok, err := db.TableExists(ctx, "items")
	if err != nil || !ok {
		t.Fatalf("TableExists = %v, %v; want true", ok, err)
	}
	n, err := db.RowCount(ctx, "items")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("RowCount = %d, want 2", n)
	}
}

func TestExecStatementsStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	err := db.ExecStatements(ctx, []string{
		"CREATE TABLE a (id INTEGER)",
		"CREATE TABLE a (id INTEGER)",
		"CREATE TABLE z (id INTEGER)",
	})
	if !migerr.Is(err, migerr.KindDestinationWrite) {
		t.Fatalf("expected destination write error, got %v", err)
	}
	if ok, _ := db.TableExists(ctx, "z"); ok {
		t.Error("statements after the failure should not run")
	}
}

func TestForeignKeysToggle(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	on, err := db.ForeignKeysEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("foreign keys should be enforced on a new connection")
	}

	for _, want := range []bool{false, true} {
		if err := db.SetForeignKeys(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, err := db.ForeignKeysEnabled(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("foreign_keys = %v, want %v", got, want)
		}
	}
}

func TestPrepareDestination(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if err := PrepareDestination(filepath.Join(dir, "none.db"), false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.db")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := PrepareDestination(path, false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("non-empty without overwrite", func(t *testing.T) {
		path := filepath.Join(dir, "full.db")
		if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
			t.Fatal(err)
		}
		err := PrepareDestination(path, false)
		if !errors.Is(err, ErrDestinationExists) {
			t.Errorf("got %v, want ErrDestinationExists", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Error("file should be left in place")
		}
	})

	t.Run("overwrite removes sidecars", func(t *testing.T) {
		path := filepath.Join(dir, "old.db")
		for _, p := range append([]string{path}, sidecarPaths(path)...) {
			if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
				t.Fatal(err)
			}
		}
		if err := PrepareDestination(path, true); err != nil {
			t.Fatal(err)
		}
		for _, p := range append([]string{path}, sidecarPaths(path)...) {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("%s should have been removed", p)
			}
		}
	})

	t.Run("directory", func(t *testing.T) {
		if err := PrepareDestination(dir, true); err == nil {
			t.Error("expected error for directory destination")
		}
	})
}

func TestRequireExisting(t *testing.T) {
	dir := t.TempDir()
	if err := RequireExisting(filepath.Join(dir, "missing.db")); err == nil {
		t.Error("expected error for missing destination")
	}
	path := filepath.Join(dir, "there.db")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RequireExisting(path); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
