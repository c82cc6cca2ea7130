package workflows

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/prompt"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
	"github.com/randalmurphal/stategraph/pkg/stategraph/tool"
)

// Assistant fields.
var (
	AssistantRaw        = state.NewKey[string]("raw")
	AssistantClean      = state.NewKey[string]("clean")
	AssistantIntent     = state.NewKey[string]("intent")
	AssistantTool       = state.NewKey[string]("tool")
	AssistantToolInput  = state.NewKey[string]("tool_input")
	AssistantToolResult = state.NewKey[string]("tool_result")
	AssistantOutput     = state.NewKey[string]("output")
)

// Intents produced by the classifier.
const (
	IntentCalculate = "calculate"
	IntentLowercase = "lowercase"
	IntentWordCount = "word_count"
	IntentTextStats = "text_stats"
	IntentChat      = "chat"
)

type intentRule struct {
	intent string
	tool   string
	re     *regexp.Regexp
}

// Checked in order; the first capture group is the tool input.
var intentRules = []intentRule{
	{IntentLowercase, "toLower", regexp.MustCompile(`(?i)^(?:please\s+)?(?:lower[\s-]?case|to\s*lower)\b(?:\s+this)?\s*:?\s*(.+)$`)},
	{IntentWordCount, "wordCount", regexp.MustCompile(`(?i)^(?:how many words (?:are |is )?in|count (?:the )?words in|word\s?count(?:\s+(?:of|for))?)\s*:?\s*(.+)$`)},
	{IntentTextStats, "text_stats", regexp.MustCompile(`(?i)^(?:text\s+)?stats\b(?:\s+(?:for|of))?\s*:?\s*(.+)$`)},
}

var mathExpr = regexp.MustCompile(`-?[(.0-9][0-9+\-*/().\s]*`)

var (
	toolAnswerPrompt = prompt.MustParse(strings.TrimSpace(`
You are a helpful assistant. A tool was used to help answer the user.
User input: ${clean}
Tool: ${tool}
Tool result: ${tool_result}
Answer the user in one short sentence.`))

	chatPrompt = prompt.MustParse(strings.TrimSpace(`
You are a helpful assistant. Answer directly and briefly.
User input: ${clean}`))
)

// Classify returns the intent, tool name and tool input for a request.
// Requests that match no tool are IntentChat with no tool.
func Classify(text string) (intent, toolName, input string) {
	text = strings.TrimSpace(text)
	for _, rule := range intentRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			return rule.intent, rule.tool, strings.TrimSpace(m[1])
		}
	}
	for _, candidate := range mathExpr.FindAllString(text, -1) {
		candidate = strings.TrimSpace(candidate)
		if strings.ContainsAny(strings.TrimPrefix(candidate, "-"), "+-*/") && strings.ContainsAny(candidate, "0123456789") {
			return IntentCalculate, "calculator", candidate
		}
	}
	return IntentChat, "", ""
}

// Assistant cleans the request, classifies it, runs a tool when one fits and
// then has the model phrase the answer.
//
//	clean_input -> classify -> (run_tool ->) respond -> END
func Assistant(deps Deps) (*Workflow, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	schema, err := state.DefineSchema(
		state.Text(AssistantRaw),
		state.Text(AssistantClean),
		state.Value(AssistantIntent, IntentChat),
		state.Text(AssistantTool),
		state.Text(AssistantToolInput),
		state.Text(AssistantToolResult),
		state.Text(AssistantOutput),
	)
	if err != nil {
		return nil, err
	}

	cleanInput := func(_ stategraph.Context, s state.State) (state.Update, error) {
		return state.NewUpdate(AssistantClean.To(strings.TrimSpace(AssistantRaw.Get(s)))), nil
	}

	classify := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		intent, name, input := Classify(AssistantClean.Get(s))
		ctx.Logger().Debug("request classified", slog.String("intent", intent), slog.String("tool", name))
		return state.NewUpdate(
			AssistantIntent.To(intent),
			AssistantTool.To(name),
			AssistantToolInput.To(input),
		), nil
	}

	runTool := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		name := AssistantTool.Get(s)
		param := "text"
		if name == "calculator" {
			param = "expression"
		}
		res, err := deps.Tools.Call(ctx, name, tool.Args{param: AssistantToolInput.Get(s)})
		if err != nil {
			return nil, err
		}
		return state.NewUpdate(AssistantToolResult.To(res.String())), nil
	}

	respond := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		if AssistantTool.Get(s) == "" {
			text, err := chatPrompt.RenderState(s)
			if err != nil {
				return nil, err
			}
			out, err := deps.Completer.Complete(ctx, text)
			if err != nil {
				return nil, err
			}
			return state.NewUpdate(AssistantOutput.To(strings.TrimSpace(out.Text))), nil
		}

		text, err := toolAnswerPrompt.RenderState(s)
		if err != nil {
			return nil, err
		}
		out, err := deps.Completer.Complete(ctx, text)
		if err != nil {
			// The tool already has the answer.
			ctx.Logger().Warn("completion failed, answering with tool result", slog.Any("error", err))
			return state.NewUpdate(AssistantOutput.To(AssistantToolResult.Get(s))), nil
		}
		return state.NewUpdate(AssistantOutput.To(strings.TrimSpace(out.Text))), nil
	}

	routeIntent := func(_ stategraph.Context, s state.State) string {
		if AssistantIntent.Get(s) == IntentChat {
			return "chat"
		}
		return "tool"
	}

	g := stategraph.NewGraph(schema).
		AddNode("clean_input", cleanInput).
		AddNode("classify", classify).
		AddNode("run_tool", runTool).
		AddNode("respond", respond).
		SetEntry("clean_input").
		AddEdge("clean_input", "classify").
		AddConditionalEdges("classify", routeIntent, map[string]string{
			"tool": "run_tool",
			"chat": "respond",
		}).
		AddEdge("run_tool", "respond").
		AddEdge("respond", stategraph.END)

	compiled, err := compile("assistant", g, deps)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		Name:        "assistant",
		Description: "Classify the request, run a calculator or text tool when one applies, then answer.",
		InputField:  AssistantRaw.Name(),
		OutputField: AssistantOutput.Name(),
		Example:     "What is (12 * 3) + 9?",
		Graph:       compiled,
	}, nil
}
