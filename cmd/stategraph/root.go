package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/stategraph/internal/workflows"
	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/config"
	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/llm"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

// app carries settings shared by every subcommand.
type app struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
	provider   string

	// lookup reads the environment; tests replace it.
	lookup config.LookupFunc
	stdin  io.Reader

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{lookup: os.LookupEnv, stdin: os.Stdin})
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "stategraph",
		Short:         "Run state-graph workflows",
		Long:          `stategraph executes small state machines that route a request through nodes, merging each node's partial update into shared state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML or JSON config file")
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "Dotenv files to load (default .env)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&a.provider, "llm-provider", "", "Completion backend: openai or echo")

	root.AddCommand(
		newRunCmd(a),
		newWorkflowsCmd(a),
		newGraphCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads dotenv files, the config file and the environment, then
// applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath, a.lookup)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.provider != "" {
		cfg.LLM.Provider = a.provider
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

// completer builds the configured backend, or Echo for dry runs.
func (a *app) completer(dryRun bool) (llm.Completer, error) {
	if dryRun {
		return llm.Echo{}, nil
	}
	return llm.New(a.cfg.LLM, a.logger)
}

// catalog builds the workflows against completer. A nil completer uses
// Echo, for commands that only inspect graphs.
func (a *app) catalog(completer llm.Completer) (*workflows.Catalog, error) {
	if completer == nil {
		completer = llm.Echo{}
	}
	return workflows.NewCatalog(workflows.Deps{
		Completer:   completer,
		MaxAttempts: a.cfg.Refine.MaxAttempts,
	})
}

// iterationCap picks the cap for one run. An explicit override wins;
// otherwise engine.max_iterations replaces the engine default but never a
// cap the workflow set for itself.
func (a *app) iterationCap(wf *workflows.Workflow, override int) int {
	if override > 0 {
		return override
	}
	if own := wf.Graph.MaxIterations(); own != stategraph.DefaultMaxIterations {
		return own
	}
	return a.cfg.Engine.MaxIterations
}

// openJournal opens the configured store, letting flags override it.
func (a *app) openJournal(cmd *cobra.Command, driver, dsn string) (journal.Store, error) {
	if driver == "" {
		driver = a.cfg.Journal.Driver
	}
	if dsn == "" && driver == a.cfg.Journal.Driver {
		dsn = a.cfg.Journal.DSN
	}
	store, err := journal.Open(cmd.Context(), driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}
