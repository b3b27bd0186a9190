// Package cli implements the humandbs command tree: one subcommand per
// pipeline stage plus run and version.  persistentPreRun builds the shared
// CLIContext (config, logger, metrics, stages) once; every subcommand pulls
// it from the command context.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	pclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/stages"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// CLIContext carries the initialized dependencies through the command tree.
type CLIContext struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.Metrics
	Stages  *stages.Stages
}

type cliContextKey struct{}

// NewRootCommand creates the root command with all global flags and
// subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "humandbs",
		Short:   "humandbs — crawl, normalize and index the NBDC research portal",
		Long:    "humandbs runs the portal ingestion pipeline: fetch the bilingual research\npages, parse and normalize them, structure the versioned research and dataset\ndocuments, curate facet and ICD10 annotations, and push everything into the\nsearch index.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		NewFetchCmd(),
		NewParseCmd(),
		NewNormalizeCmd(),
		NewStructureCmd(),
		NewFacetNormalizeCmd(),
		NewICD10NormalizeCmd(),
		NewIndexCmd(),
		NewRunCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// persistentPreRun loads configuration, builds the logger and the stage
// wiring, and stores the CLIContext.  The version subcommand runs without
// any of that.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(opts.LogLevel)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	metrics := prometheus.New(pclient.NewRegistry())
	st, err := stages.New(cfg, logger, metrics)
	if err != nil {
		return err
	}

	cliCtx := &CLIContext{Config: cfg, Logger: logger, Metrics: metrics, Stages: st}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	return config.LoadFromEnv()
}

// GetCLIContext extracts the CLIContext stored by persistentPreRun.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cliCtx, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "CLI context not initialized")
	}
	return cliCtx, nil
}

// humVersionIDArgs validates that every positional argument is a well-formed
// humVersionId.
func humVersionIDArgs(_ *cobra.Command, args []string) error {
	for _, a := range args {
		if _, _, ok := research.ParseHumVersionID(a); !ok {
			return errors.New(errors.ErrCodeValidation, "malformed humVersionId argument").WithDetail(a)
		}
	}
	return nil
}

// reportOutcome logs the stage report and converts record failures into a
// command error, so the process exits non-zero.
func reportOutcome(cliCtx *CLIContext, stage string, rep *runner.Report) error {
	cliCtx.Logger.Info("stage finished",
		logging.String("stage", stage),
		logging.Int("total", rep.Total),
		logging.Int("succeeded", rep.Succeeded),
		logging.Int("failed", len(rep.Failed)))
	if rep.Ok() {
		return nil
	}
	for _, f := range rep.Failed {
		cliCtx.Logger.Error("record failed", logging.String("key", f.Key), logging.String("error", f.Err))
	}
	return errors.Newf(errors.ErrCodeInternal, "%d of %d records failed", len(rep.Failed), rep.Total)
}

// exitCode maps an execution error onto the process exit code: 1 for
// configuration or validation problems (including usage errors), 2 for
// unrecoverable I/O.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ae *errors.AppError
	if !stderrors.As(err, &ae) {
		return 1
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeConfig, errors.ErrCodeValidation, errors.ErrCodeICD10Violation, errors.ErrCodeBadRequest:
		return 1
	}
	return 2
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}
