package workflows

import (
	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Pipeline fields.
var (
	PipelineInput    = state.NewKey[string]("input")
	PipelineMessages = state.NewKey[[]string]("messages")
	PipelineDone     = state.NewKey[bool]("done")
)

// Pipeline is a straight line: record_input -> record_messages -> call_llm.
// Each node appends one message; call_llm appends the model's answer.
func Pipeline(deps Deps) (*Workflow, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	schema, err := state.DefineSchema(
		state.Text(PipelineInput),
		state.List(PipelineMessages),
		state.Value(PipelineDone, false),
	)
	if err != nil {
		return nil, err
	}

	recordInput := func(_ stategraph.Context, s state.State) (state.Update, error) {
		msg := "we just received the input: " + jsonText(map[string]string{"input": PipelineInput.Get(s)})
		return state.NewUpdate(PipelineMessages.To([]string{msg}), PipelineDone.To(true)), nil
	}

	recordMessages := func(_ stategraph.Context, s state.State) (state.Update, error) {
		msg := "we just received the messages: " + jsonText(map[string][]string{"messages": PipelineMessages.Get(s)})
		return state.NewUpdate(PipelineMessages.To([]string{msg}), PipelineDone.To(true)), nil
	}

	callLLM := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		out, err := deps.Completer.Complete(ctx, PipelineInput.Get(s))
		if err != nil {
			return nil, err
		}
		return state.NewUpdate(PipelineMessages.To([]string{out.Text}), PipelineDone.To(true)), nil
	}

	g := stategraph.NewGraph(schema).
		AddNode("record_input", recordInput).
		AddNode("record_messages", recordMessages).
		AddNode("call_llm", callLLM).
		SetEntry("record_input").
		AddEdge("record_input", "record_messages").
		AddEdge("record_messages", "call_llm").
		AddEdge("call_llm", stategraph.END)

	compiled, err := compile("pipeline", g, deps)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		Name:        "pipeline",
		Description: "Record the input, record the message log, then ask the model.",
		InputField:  PipelineInput.Name(),
		OutputField: PipelineMessages.Name(),
		Example:     "what is the capital of France?",
		Graph:       compiled,
	}, nil
}
