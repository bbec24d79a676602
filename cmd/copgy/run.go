package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/willibrandon/copgy/internal/config"
	"github.com/willibrandon/copgy/internal/engine"
	"github.com/willibrandon/copgy/internal/logger"
	"github.com/willibrandon/copgy/internal/manifest"
	"github.com/willibrandon/copgy/internal/metrics"
	"github.com/willibrandon/copgy/internal/pg"
	"github.com/willibrandon/copgy/internal/report"
	"github.com/willibrandon/copgy/internal/sqlcheck"
	"github.com/willibrandon/copgy/internal/target"
)

// newSingleCmd creates the single subcommand, a one-step copy built from flags.
func (a *app) newSingleCmd() *cobra.Command {
	var sourceSQL, destTable string

	cmd := &cobra.Command{
		Use:   "single",
		Short: "Copy the result of one query into a destination table",
		Example: `  copgy single --source-db-url postgres://u:p@src:5432/app \
    --dest-db-url postgres://u:p@dst:5432/app \
    --source-sql "SELECT * FROM users WHERE active" --dest-table users`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			step := manifest.NewStep().Copy(sourceSQL, destTable).Build()
			return a.run(cmd.Context(), manifest.New(step))
		},
	}

	cmd.Flags().StringVar(&sourceSQL, "source-sql", "", "query whose rows are copied (required)")
	cmd.Flags().StringVar(&destTable, "dest-table", "", "destination table (required)")
	_ = cmd.MarkFlagRequired("source-sql")
	_ = cmd.MarkFlagRequired("dest-table")
	return cmd
}

// newScriptCmd creates the script subcommand, which runs a manifest file.
func (a *app) newScriptCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Run the steps of a manifest file",
		Long: `Run the steps of a JSON or YAML manifest. A manifest is an array of steps:

  [
    {"execute": {"dest_sql": "TRUNCATE users"}},
    {"copy": {"source_sql": "SELECT * FROM users", "dest_table": "users"}},
    {"execute": {"source_sql": "ANALYZE users", "dest_sql": "ANALYZE users"}}
  ]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.load(file)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), m)
		},
	}

	addFileFlag(cmd, &file)
	return cmd
}

// newValidateCmd creates the validate subcommand. It never connects.
func (a *app) newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a manifest and its SQL without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.load(file)
			if err != nil {
				return err
			}
			if err := sqlcheck.Validate(m); err != nil {
				a.console.Failed(err)
				return errReported
			}
			fmt.Fprintf(a.out, "%s manifest is valid (%d steps, %d statements)\n",
				report.MarkSuccess, m.Len(), len(m.SQL()))
			return nil
		},
	}

	addFileFlag(cmd, &file)
	return cmd
}

// newPlanCmd creates the plan subcommand, which prints the step tree.
func (a *app) newPlanCmd() *cobra.Command {
	var file string
	var width int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.load(file)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, report.RenderPlan(m, width))
			return nil
		},
	}

	addFileFlag(cmd, &file)
	cmd.Flags().IntVar(&width, "width", report.DefaultPlanWidth, "column to wrap SQL at")
	return cmd
}

func addFileFlag(cmd *cobra.Command, file *string) {
	cmd.Flags().StringVarP(file, "file", "f", "", "manifest file, JSON or YAML (required)")
	cmd.Flags().StringVar(file, "file-path", "", "alias for --file")
	_ = cmd.Flags().MarkHidden("file-path")
	cmd.MarkFlagsOneRequired("file", "file-path")
}

// load reads a manifest and checks its structure.
func (a *app) load(path string) (manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return manifest.Manifest{}, err
	}
	logger.Debug("Manifest loaded", "path", path, "steps", m.Len())
	return m, nil
}

// run executes m against the configured databases.
func (a *app) run(ctx context.Context, m manifest.Manifest) error {
	if err := a.cfg.RequireEndpoints(); err != nil {
		return err
	}

	log, runID := logger.ForRun()
	stats := metrics.NewCollector()
	observers := engine.Observers{a.console, stats}
	if a.cfg.Log.File != "" || a.cfg.Debug {
		observers = append(observers, report.NewLogObserver(log))
	}

	a.console.Started()
	log.Info("Run starting", "steps", m.Len(), "run_id", runID)

	e := engine.New(engineOptions(a.cfg), observers)
	if err := e.Execute(ctx, m, connector(a.cfg)); err != nil {
		return errReported
	}

	fmt.Fprint(a.out, report.Summary(stats))
	a.console.Ended()
	return nil
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		ValidateSQL:   cfg.ValidateSQL,
		BufferSize:    cfg.Copy.BufferSize,
		StepTimeout:   cfg.StepTimeout,
		ProgressEvery: cfg.Copy.ProgressEvery,
	}
}

// connector connects each role to its configured URL. Both URLs are resolved
// on the first call, so a malformed one fails the run before any dial.
func connector(cfg *config.Config) engine.Connector {
	var targets map[engine.Role]target.Target
	return engine.ConnectorFunc(func(ctx context.Context, role engine.Role) (engine.Conn, error) {
		if targets == nil {
			resolved, err := resolveTargets(cfg)
			if err != nil {
				return nil, err
			}
			targets = resolved
		}

		endpoint := cfg.Source
		if role == engine.RoleDestination {
			endpoint = cfg.Destination
		}

		start := time.Now()
		conn, err := pg.Connect(ctx, targets[role], cfg.PGOptions(endpoint))
		if err != nil {
			return nil, err
		}
		logger.Debug("Connection ready", "role", role, "elapsed", time.Since(start))
		return conn, nil
	})
}

func resolveTargets(cfg *config.Config) (map[engine.Role]target.Target, error) {
	src, err := target.Resolve(cfg.Source.URL)
	if err != nil {
		return nil, err
	}
	dst, err := target.Resolve(cfg.Destination.URL)
	if err != nil {
		return nil, err
	}
	return map[engine.Role]target.Target{
		engine.RoleSource:      src,
		engine.RoleDestination: dst,
	}, nil
}
