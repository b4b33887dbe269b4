package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/johndauphine/pg2sqlite/internal/config"
	"github.com/johndauphine/pg2sqlite/internal/exitcodes"
	"github.com/urfave/cli/v2"
)

// parseConfig runs the app with args and returns what buildConfig produced.
func parseConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	app := newApp()
	var cfg *config.Config
	var buildErr error
	app.Action = func(c *cli.Context) error {
		cfg, buildErr = buildConfig(c)
		return nil
	}
	if err := app.Run(append([]string{"pg2sqlite"}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
	return cfg, buildErr
}

func TestBuildConfigFromFlags(t *testing.T) {
	cfg, err := parseConfig(t,
		"--src", "postgres://app@localhost/shop",
		"--dest", "shop.db",
		"--schema", "public, audit",
		"--schema-only", "--no-views", "--progress")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Source.Schemas, []string{"public", "audit"}) {
		t.Errorf("schemas = %v", cfg.Source.Schemas)
	}
	if cfg.Migration.Mode != config.ModeSchemaOnly || !cfg.Migration.NoViews {
		t.Errorf("migration = %+v", cfg.Migration)
	}
	if cfg.Migration.Progress != config.ProgressBar {
		t.Errorf("progress = %q, want bar", cfg.Migration.Progress)
	}
	if cfg.Source.Driver != "pgx" {
		t.Errorf("driver = %q, want pgx", cfg.Source.Driver)
	}
}

func TestBuildConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg2sqlite.yaml")
	content := "source:\n  dsn: postgres://app@localhost/shop\n  schemas: [sales]\ntarget:\n  path: a.db\nmigration:\n  progress: json\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig(t, "--config", path, "--dest", "b.db", "--driver", "lib/pq")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Path != "b.db" {
		t.Errorf("path = %q, want b.db", cfg.Target.Path)
	}
	if !reflect.DeepEqual(cfg.Source.Schemas, []string{"sales"}) {
		t.Errorf("schemas = %v, want the file's [sales]", cfg.Source.Schemas)
	}
	if cfg.Source.Driver != "pq" {
		t.Errorf("driver = %q, want pq", cfg.Source.Driver)
	}
	if cfg.Migration.Progress != config.ProgressJSON {
		t.Errorf("progress = %q, want json", cfg.Migration.Progress)
	}
}

func TestBuildConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"both modes", []string{"--src", "postgres://h/db", "--dest", "x.db", "--data-only", "--schema-only"}, exitcodes.ConfigError},
		{"stdout data only", []string{"--src", "postgres://h/db", "--dest", "STDOUT", "--data-only"}, exitcodes.ConfigError},
		{"stdout json", []string{"--src", "postgres://h/db", "--dest", "stdout", "--output-json"}, exitcodes.ConfigError},
		{"missing dest", []string{"--src", "postgres://h/db"}, exitcodes.ConfigError},
		{"bad style", []string{"--src", "postgres://h/db", "--dest", "x.db", "--progress-style", "fancy"}, exitcodes.ConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := exitcodes.FromError(err); got != tt.code {
				t.Errorf("exit code = %d for %v, want %d", got, err, tt.code)
			}
		})
	}
}

func TestNewRunResult(t *testing.T) {
	ok := newRunResult(nil, nil)
	if ok.Status != "success" || ok.ExitCode != exitcodes.Success {
		t.Errorf("result = %+v", ok)
	}
	failed := newRunResult(nil, errors.New("row count validation failed"))
	if failed.Status != "failed" || failed.ExitCode != exitcodes.ValidationError {
		t.Errorf("result = %+v", failed)
	}
}

func TestSplitSchemas(t *testing.T) {
	got := splitSchemas(" public ,,audit,")
	if !reflect.DeepEqual(got, []string{"public", "audit"}) {
		t.Errorf("splitSchemas = %v", got)
	}
}
