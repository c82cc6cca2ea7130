package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/term"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

type runOptions struct {
	input         string
	sets          []string
	maxIterations int
	runID         string
	journalDriver string
	journalDSN    string
	dryRun        bool
	render        string
	jsonOut       bool
	trace         bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <workflow> [text]",
		Short: "Run a workflow once and print its answer",
		Long: `Runs one workflow to completion.

The request text comes from --input, the remaining arguments, or stdin.
When stdin is a terminal you are prompted for it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" && len(args) > 1 {
				opts.input = strings.Join(args[1:], " ")
			}
			return runWorkflow(cmd, a, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Request text")
	f.StringArrayVar(&opts.sets, "set", nil, "Initial state field as key=value (repeatable)")
	f.IntVar(&opts.maxIterations, "max-iterations", 0, "Override the iteration cap")
	f.StringVar(&opts.runID, "run-id", "", "Run identifier (default: random UUID)")
	f.StringVar(&opts.journalDriver, "journal", "", "Journal driver: memory, sqlite, redis")
	f.StringVar(&opts.journalDSN, "journal-dsn", "", "Journal location (sqlite path or redis URL)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Echo prompts instead of calling the model")
	f.StringVar(&opts.render, "render", "auto", "Render the answer as markdown: auto, always, never")
	f.BoolVar(&opts.jsonOut, "json", false, "Print run id, output and final state as JSON")
	f.BoolVar(&opts.trace, "trace", false, "Print a span summary to stderr")
	return cmd
}

func runWorkflow(cmd *cobra.Command, a *app, name string, opts runOptions) error {
	completer, err := a.completer(opts.dryRun)
	if err != nil {
		return err
	}
	catalog, err := a.catalog(completer)
	if err != nil {
		return err
	}
	wf, err := catalog.Get(name)
	if err != nil {
		return err
	}

	initial, err := parseSets(wf.Graph.Schema(), opts.sets)
	if err != nil {
		return err
	}
	if _, ok := initial[wf.InputField]; !ok || opts.input != "" {
		text := opts.input
		if text == "" {
			text, err = readInput(cmd, a.stdin)
			if err != nil {
				return err
			}
		}
		maps.Copy(initial, wf.Input(text))
	}

	store, err := a.openJournal(cmd, opts.journalDriver, opts.journalDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	runOpts := []stategraph.RunOption{
		stategraph.WithLogger(a.logger),
		stategraph.WithJournal(store),
		stategraph.WithMaxIterations(a.iterationCap(wf, opts.maxIterations)),
	}
	if opts.runID != "" {
		runOpts = append(runOpts, stategraph.WithRunID(opts.runID))
	}

	var recorder *tracetest.SpanRecorder
	if opts.trace {
		recorder = tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		defer func() { _ = provider.Shutdown(cmd.Context()) }()
		runOpts = append(runOpts, stategraph.WithTracing(observability.NewSpanManager(provider)))
	}

	final, runErr := wf.Graph.Invoke(cmd.Context(), initial, runOpts...)
	if recorder != nil {
		printSpans(cmd.ErrOrStderr(), recorder.Ended())
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	answer := wf.Output(final)
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"workflow": wf.Name,
			"output":   answer,
			"state":    final,
		})
	}
	return printAnswer(out, answer, opts.render)
}

// parseSets decodes key=value pairs against the schema so "3" fills an int
// field and "true" a bool field.
func parseSets(schema *state.Schema, sets []string) (state.Update, error) {
	raw := make(map[string]any, len(sets))
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		raw[key] = value
	}
	return schema.Decode(raw)
}

// readInput prompts on a terminal, otherwise reads stdin to EOF.
func readInput(cmd *cobra.Command, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		line, err := bufio.NewReader(f).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no input: pass --input, text arguments or stdin")
	}
	return text, nil
}

func printSpans(w io.Writer, spans []sdktrace.ReadOnlySpan) {
	for _, s := range spans {
		fmt.Fprintf(w, "span %-32s %10s %s\n", s.Name(), s.EndTime().Sub(s.StartTime()), s.Status().Code)
	}
}
