/*
Package stategraph executes workflows expressed as directed graphs over a
shared, schema-defined state.

# Overview

A graph has named nodes and a routing rule per node. Each node reads an
immutable snapshot of the state and returns a partial update; the update is
merged field by field using each field's reducer. After the merge, the
node's rule (a fixed edge or a router plus label mapping) picks the next
node. A run starts at the START pseudo-node and finishes when a rule
selects END.

# Basic Usage

Declare the state, build the graph, compile, invoke:

	var (
	    Input  = state.NewKey[string]("input")
	    Output = state.NewKey[string]("output")
	)

	schema := state.MustDefineSchema(state.Text(Input), state.Text(Output))

	process := func(ctx stategraph.Context, s state.State) (state.Update, error) {
	    return state.NewUpdate(Output.To("Processed: " + Input.Get(s))), nil
	}

	compiled, err := stategraph.NewGraph(schema).
	    AddNode("process", process).
	    SetEntry("process").
	    AddEdge("process", stategraph.END).
	    Compile()
	if err != nil {
	    log.Fatal(err)
	}

	final, err := compiled.Invoke(context.Background(), state.NewUpdate(Input.To("hello")))
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(Output.Get(final)) // "Processed: hello"

# Reducers

Fields without a reducer are overwritten by each update. List fields append,
Counter fields add:

	schema := state.MustDefineSchema(
	    state.List(Messages),  // append
	    state.Counter(Attempts), // sum
	    state.Text(Phase),     // overwrite
	)

# Conditional Edges and Loops

A router returns a label; the mapping turns it into the next node:

	graph.AddConditionalEdges("validate", func(ctx stategraph.Context, s state.State) string {
	    if Valid.Get(s) {
	        return "done"
	    }
	    return "retry"
	}, map[string]string{
	    "done":  stategraph.END,
	    "retry": "draft",
	})

A label missing from the mapping fails the run with *UnmappedRouteError.
Cycles are bounded by the iteration cap (default 25, SetMaxIterations or
WithMaxIterations); the run that would start step cap+1 fails with
*IterationLimitError.

# Errors

Compile reports every builder mistake at once via errors.Join. Invoke wraps
every failure in *GraphExecutionError; use errors.As for the cause and
ErrorKind for a stable classification.

# Observability

Runs can log through slog (WithLogger), record metrics (WithMetrics), emit
OpenTelemetry spans (WithTracing) and append to a journal (WithJournal).
*/
package stategraph
