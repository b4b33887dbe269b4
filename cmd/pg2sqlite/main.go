package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/config"
	"github.com/johndauphine/pg2sqlite/internal/exitcodes"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/orchestrator"
	"github.com/johndauphine/pg2sqlite/internal/progress"
	"github.com/johndauphine/pg2sqlite/internal/tui"
	"github.com/johndauphine/pg2sqlite/internal/typemap"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcodes.FromError(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "pg2sqlite",
		Usage:     "Copy a PostgreSQL schema and its data into a SQLite database",
		UsageText: "pg2sqlite --src postgres://user@host/db --dest out.db [options]",
		Version:   version,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
		}, runFlags()...),
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return exitcodes.NewExitError(err, exitcodes.ConfigError)
			}
			logging.SetLevel(level)
			if err := logging.SetFormat(c.String("log-format")); err != nil {
				return exitcodes.NewExitError(err, exitcodes.ConfigError)
			}
			return nil
		},
		OnUsageError: func(c *cli.Context, err error, _ bool) error {
			return exitcodes.NewExitError(err, exitcodes.ConfigError)
		},
		Action: runMigration,
		Commands: []*cli.Command{
			{
				Name:   "types",
				Usage:  "List the supported PostgreSQL column types and their SQLite storage class",
				Action: listTypes,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Value: "table",
						Usage: "Output format: table or yaml",
					},
				},
			},
			{
				Name:   "health-check",
				Usage:  "Test the source connection and the destination directory",
				Action: healthCheck,
				Flags:  runFlags(),
			},
			{
				Name:   "dry-run",
				Usage:  "Introspect the source and print the migration plan without writing anything",
				Action: dryRun,
				Flags:  runFlags(),
			},
		},
	}
}

// runFlags are shared by the root command and the subcommands that
// connect to the source.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "src",
			Usage: "PostgreSQL connection string (URL or key=value)",
		},
		&cli.StringFlag{
			Name:  "dest",
			Usage: "SQLite database file, or STDOUT to print the DDL only",
		},
		&cli.StringFlag{
			Name:  "schema",
			Value: "public",
			Usage: "Comma-separated list of source schemas",
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "Source driver: pgx or pq",
		},
		&cli.BoolFlag{
			Name:  "password-prompt",
			Usage: "Read the source password from the terminal",
		},
		&cli.BoolFlag{
			Name:  "overwrite",
			Usage: "Replace a non-empty destination file",
		},
		&cli.BoolFlag{
			Name:  "no-views",
			Usage: "Do not create views",
		},
		&cli.BoolFlag{
			Name:  "data-only",
			Usage: "Load rows into existing tables without creating the schema",
		},
		&cli.BoolFlag{
			Name:  "schema-only",
			Usage: "Create tables and views without loading rows",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Show load progress",
		},
		&cli.StringFlag{
			Name:  "progress-style",
			Usage: "Progress output: bar, json, tui or none",
		},
		&cli.IntFlag{
			Name:  "report-every",
			Usage: "Rows between progress updates",
		},
		&cli.BoolFlag{
			Name:  "validate",
			Usage: "Compare source and destination row counts after the load",
		},
		&cli.BoolFlag{
			Name:  "output-json",
			Usage: "Print the result as JSON on stdout (logs go to stderr)",
		},
		&cli.StringFlag{
			Name:  "output-file",
			Usage: "Write the JSON result to a file",
		},
	}
}

// buildConfig layers command-line flags over the config file and applies
// defaults.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.ReadFile(path, config.LoadOptions{}); err != nil {
			return nil, err
		}
	}

	if c.IsSet("src") {
		cfg.Source.DSN = c.String("src")
	}
	if c.IsSet("dest") {
		cfg.Target.Path = c.String("dest")
	}
	if c.IsSet("schema") || len(cfg.Source.Schemas) == 0 {
		cfg.Source.Schemas = splitSchemas(c.String("schema"))
	}
	if c.IsSet("driver") {
		cfg.Source.Driver = c.String("driver")
	}
	if c.Bool("overwrite") {
		cfg.Target.Overwrite = true
	}
	if c.Bool("no-views") {
		cfg.Migration.NoViews = true
	}
	if c.Bool("validate") {
		cfg.Migration.Validate = true
	}

	if c.Bool("data-only") && c.Bool("schema-only") {
		return nil, exitcodes.NewExitError(
			fmt.Errorf("--data-only and --schema-only are mutually exclusive"), exitcodes.ConfigError)
	}
	switch {
	case c.Bool("data-only"):
		cfg.Migration.Mode = config.ModeDataOnly
	case c.Bool("schema-only"):
		cfg.Migration.Mode = config.ModeSchemaOnly
	}

	switch {
	case c.IsSet("progress-style"):
		cfg.Migration.Progress = c.String("progress-style")
	case c.Bool("progress") && (cfg.Migration.Progress == "" || cfg.Migration.Progress == config.ProgressNone):
		cfg.Migration.Progress = config.ProgressBar
	}
	if c.IsSet("report-every") {
		cfg.Migration.ReportEvery = c.Int("report-every")
	}
	if c.IsSet("verbosity") {
		cfg.Logging.Level = c.String("verbosity")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}

	cfg, err := cfg.Finalize()
	if err != nil {
		return nil, err
	}
	if cfg.IsStdout() && c.Bool("output-json") {
		return nil, exitcodes.NewExitError(
			fmt.Errorf("--output-json and --dest STDOUT both write to stdout"), exitcodes.ConfigError)
	}

	// The file may carry its own logging settings.
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.SetLevel(level)
	if err := logging.SetFormat(cfg.Logging.Format); err != nil {
		return nil, err
	}
	logging.Debug("Configuration: %+v", *cfg.Sanitized())
	return cfg, nil
}

func splitSchemas(s string) []string {
	var schemas []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			schemas = append(schemas, part)
		}
	}
	return schemas
}

// promptPassword reads the source password without echo when
// --password-prompt is set.
func promptPassword(c *cli.Context) (string, error) {
	if !c.Bool("password-prompt") {
		return "", nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", exitcodes.NewExitError(
			fmt.Errorf("--password-prompt needs an interactive terminal"), exitcodes.ConfigError)
	}
	fmt.Fprint(os.Stderr, "Source password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Rolling back...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func connect(c *cli.Context) (context.Context, context.CancelFunc, *config.Config, *orchestrator.Orchestrator, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	password, err := promptPassword(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := signalContext()
	orch, err := orchestrator.New(ctx, cfg, password)
	if err != nil {
		cancel()
		return nil, nil, cfg, nil, err
	}
	return ctx, cancel, cfg, orch, nil
}

func runMigration(c *cli.Context) error {
	if c.Args().Present() {
		return exitcodes.NewExitError(
			fmt.Errorf("unexpected argument %q", c.Args().First()), exitcodes.ConfigError)
	}
	ctx, cancel, cfg, orch, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer orch.Close()

	var summary *orchestrator.Summary
	switch style := progressStyle(cfg); style {
	case config.ProgressTUI:
		// Buffer logs while the view owns the terminal.
		var logs bytes.Buffer
		logging.SetOutput(&logs)
		err = tui.Run(os.Stderr, cancel, func(obs progress.Observer) error {
			orch.SetObserver(obs)
			var runErr error
			summary, runErr = orch.Run(ctx)
			return runErr
		})
		logging.SetOutput(nil)
		os.Stderr.Write(logs.Bytes())
	case config.ProgressBar:
		orch.SetObserver(progress.New(os.Stderr))
		summary, err = orch.Run(ctx)
	case config.ProgressJSON:
		orch.SetObserver(progress.NewJSONReporter(os.Stderr, time.Second))
		summary, err = orch.Run(ctx)
	default:
		summary, err = orch.Run(ctx)
	}

	if c.Bool("output-json") || c.String("output-file") != "" {
		if jsonErr := outputJSON(c, newRunResult(summary, err)); jsonErr != nil {
			logging.Warn("Failed to output JSON: %v", jsonErr)
		}
	}
	if err != nil {
		return err
	}
	reportSummary(summary)
	return nil
}

// progressStyle resolves the configured style against the terminal. The
// interactive styles need stderr to be a terminal and fall back to JSON
// lines otherwise. Nothing is shown when no rows will be loaded.
func progressStyle(cfg *config.Config) string {
	style := cfg.Migration.Progress
	if cfg.IsStdout() || cfg.Migration.Mode == config.ModeSchemaOnly {
		return config.ProgressNone
	}
	if (style == config.ProgressBar || style == config.ProgressTUI) && !term.IsTerminal(int(os.Stderr.Fd())) {
		logging.Warn("stderr is not a terminal, using json progress instead of %s", style)
		return config.ProgressJSON
	}
	return style
}

func reportSummary(s *orchestrator.Summary) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprint(os.Stderr, tui.RenderSummary(s))
		return
	}
	logging.Info("Summary: run=%s mode=%s tables=%d views=%d rows=%d duration=%s",
		s.RunID, s.Mode, s.Tables, s.Views, s.Rows, s.Duration.Round(time.Millisecond))
}

// runResult is the JSON document written by --output-json.
type runResult struct {
	*orchestrator.Summary
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func newRunResult(s *orchestrator.Summary, err error) *runResult {
	r := &runResult{Summary: s, Status: "success", ExitCode: exitcodes.FromError(err)}
	if err != nil {
		r.Status = "failed"
		r.Error = err.Error()
	}
	return r
}

// outputJSON writes a result as JSON to stdout and/or a file
func outputJSON(c *cli.Context, result any) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if c.Bool("output-json") {
		fmt.Println(string(data))
	}

	if outputFile := c.String("output-file"); outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	}
	return nil
}

func healthCheck(c *cli.Context) error {
	ctx, cancel, cfg, orch, err := connect(c)
	if err != nil {
		if cfg == nil {
			return err
		}
		// Report the failed connection in the same shape as a check.
		result := &orchestrator.HealthCheckResult{
			Timestamp:    time.Now().Format(time.RFC3339),
			SourceDriver: cfg.Source.Driver,
			SourceError:  err.Error(),
			TargetPath:   cfg.Target.Path,
		}
		printJSON(result)
		return err
	}
	defer cancel()
	defer orch.Close()

	result, err := orch.HealthCheck(ctx)
	if err != nil {
		return err
	}
	printJSON(result)
	if !result.Healthy {
		return exitcodes.NewExitError(fmt.Errorf("health check failed"), exitcodes.ConnectionError)
	}
	return nil
}

func dryRun(c *cli.Context) error {
	ctx, cancel, _, orch, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer orch.Close()

	result, err := orch.DryRun(ctx)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Error("Failed to marshal result: %v", err)
		return
	}
	fmt.Println(string(data))
}

func listTypes(c *cli.Context) error {
	types := typemap.Types()
	switch c.String("format") {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(types); err != nil {
			return fmt.Errorf("encoding types: %w", err)
		}
		return enc.Close()
	case "table":
		fmt.Printf("%-16s %s\n", "PostgreSQL", "SQLite")
		for _, t := range types {
			fmt.Printf("%-16s %s\n", t.Name, t.Class)
		}
		return nil
	default:
		return exitcodes.NewExitError(
			fmt.Errorf("invalid value %q for --format: use table or yaml", c.String("format")), exitcodes.ConfigError)
	}
}
