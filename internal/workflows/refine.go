package workflows

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/prompt"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Refine fields.
var (
	RefineRaw         = state.NewKey[string]("raw")
	RefineClean       = state.NewKey[string]("clean")
	RefinePhase       = state.NewKey[string]("phase")
	RefinePlan        = state.NewKey[string]("plan")
	RefineDraft       = state.NewKey[string]("draft")
	RefineFinal       = state.NewKey[string]("final")
	RefineAttempts    = state.NewKey[int]("attempts")
	RefineMaxAttempts = state.NewKey[int]("max_attempts")
	RefineError       = state.NewKey[string]("error")
	RefineRoute       = state.NewKey[string]("route")
	RefineIssues      = state.NewKey[[]string]("issues")
)

// Refine phases.
const (
	PhasePlan     = "plan"
	PhaseExecute  = "execute"
	PhaseValidate = "validate"
	PhaseError    = "error"
	PhaseDone     = "done"
)

// Validation issues.
const (
	IssueTooShort       = "too short"
	IssueMissingBullets = "missing bullets or steps"
	IssueRefusal        = "contains refusal"
)

// MinDraftLength is the shortest acceptable draft, in UTF-16 code units.
const MinDraftLength = 80

// HandleErrorMessage is the final answer after a failed completion.
const HandleErrorMessage = "Something went wrong. Please try again."

var (
	bulletPattern = regexp.MustCompile(`[-•]\s+`)
	stepPattern   = regexp.MustCompile(`\d+\.\s+`)

	refusalPhrases = []string{"i don't know", "i cant", "i can't", "unable to"}
)

var (
	planPrompt = prompt.MustParse(strings.TrimSpace(`
You are a helpful assistant that can generate a plan for a task.
Return a short numbered plan (3-6 steps). Do NOT write the final answer yet.
User input: ${clean}`), prompt.WithMissingAction(prompt.MissingEmpty))

	draftPrompt = prompt.MustParse(strings.TrimSpace(`
You are a helpful assistant that can generate a draft answer for a task.
Use the plan to structure the response with at least 2 bullet points or 2 numbered steps.
User input: ${clean}
Plan: ${plan}`), prompt.WithMissingAction(prompt.MissingEmpty))
)

// ValidateDraft returns the rules a draft breaks, in a fixed order.
func ValidateDraft(draft string) []string {
	issues := []string{}
	if len(utf16.Encode([]rune(draft))) < MinDraftLength {
		issues = append(issues, IssueTooShort)
	}
	marks := len(bulletPattern.FindAllStringIndex(draft, -1)) + len(stepPattern.FindAllStringIndex(draft, -1))
	if marks < 2 {
		issues = append(issues, IssueMissingBullets)
	}
	lower := strings.ToLower(draft)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			issues = append(issues, IssueRefusal)
			break
		}
	}
	return issues
}

// NextRoute picks the router label for a refine state. The attempt budget is
// checked before the phase so retries always stop.
func NextRoute(phase string, attempts, maxAttempts int) string {
	if attempts >= maxAttempts {
		return "give_up"
	}
	switch phase {
	case PhaseDone:
		return "end"
	case PhasePlan:
		return "make_plan"
	case PhaseExecute:
		return "make_draft"
	case PhaseValidate:
		return "validate_draft"
	default:
		return "handle_error"
	}
}

// Refine plans, drafts and validates an answer, looping until the draft
// passes or the attempt budget runs out. A central router node decides every
// transition from the phase field.
func Refine(deps Deps) (*Workflow, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	schema, err := state.DefineSchema(
		state.Text(RefineRaw),
		state.Text(RefineClean),
		state.Value(RefinePhase, PhasePlan),
		state.Text(RefinePlan),
		state.Text(RefineDraft),
		state.Text(RefineFinal),
		state.Counter(RefineAttempts),
		state.Value(RefineMaxAttempts, deps.MaxAttempts),
		state.Text(RefineError),
		state.Text(RefineRoute),
		state.Field(RefineIssues, state.WithDefault([]string{}), state.WithClone(slices.Clone[[]string])),
	)
	if err != nil {
		return nil, err
	}

	cleanInput := func(_ stategraph.Context, s state.State) (state.Update, error) {
		return state.NewUpdate(RefineClean.To(strings.ToLower(strings.TrimSpace(RefineRaw.Get(s))))), nil
	}

	router := func(_ stategraph.Context, s state.State) (state.Update, error) {
		route := NextRoute(RefinePhase.Get(s), RefineAttempts.Get(s), RefineMaxAttempts.Get(s))
		return state.NewUpdate(RefineRoute.To(route)), nil
	}

	complete := func(ctx stategraph.Context, s state.State, tpl *prompt.Template, field state.Key[string], next string) (state.Update, error) {
		text, err := tpl.RenderState(s)
		if err != nil {
			return nil, err
		}
		out, err := deps.Completer.Complete(ctx, text)
		if err != nil {
			ctx.Logger().Warn("completion failed", slog.Any("error", err))
			return state.NewUpdate(RefineError.To(err.Error()), RefinePhase.To(PhaseError)), nil
		}
		return state.NewUpdate(field.To(out.Text), RefinePhase.To(next)), nil
	}

	makePlan := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		return complete(ctx, s, planPrompt, RefinePlan, PhaseExecute)
	}

	makeDraft := func(ctx stategraph.Context, s state.State) (state.Update, error) {
		return complete(ctx, s, draftPrompt, RefineDraft, PhaseValidate)
	}

	validateDraft := func(_ stategraph.Context, s state.State) (state.Update, error) {
		draft := RefineDraft.Get(s)
		issues := ValidateDraft(draft)
		if len(issues) == 0 {
			return state.NewUpdate(
				RefineFinal.To(draft),
				RefinePhase.To(PhaseDone),
				RefineIssues.To([]string{}),
			), nil
		}
		next := PhaseExecute
		if slices.Contains(issues, IssueRefusal) {
			next = PhasePlan
		}
		return state.NewUpdate(
			RefineIssues.To(issues),
			RefineAttempts.To(1),
			RefinePhase.To(next),
		), nil
	}

	handleError := func(_ stategraph.Context, _ state.State) (state.Update, error) {
		return state.NewUpdate(RefineFinal.To(HandleErrorMessage), RefinePhase.To(PhaseDone)), nil
	}

	giveUp := func(_ stategraph.Context, s state.State) (state.Update, error) {
		final := fmt.Sprintf("I couldn't produce a valid answer in %d attempts. Here is my best draft:\n\n%s",
			RefineMaxAttempts.Get(s), RefineDraft.Get(s))
		return state.NewUpdate(RefineFinal.To(final), RefinePhase.To(PhaseDone)), nil
	}

	g := stategraph.NewGraph(schema).
		AddNode("clean_input", cleanInput).
		AddNode("router", router).
		AddNode("make_plan", makePlan).
		AddNode("make_draft", makeDraft).
		AddNode("validate_draft", validateDraft).
		AddNode("handle_error", handleError).
		AddNode("give_up", giveUp).
		SetEntry("clean_input").
		AddEdge("clean_input", "router").
		AddConditionalEdges("router", func(_ stategraph.Context, s state.State) string {
			return RefineRoute.Get(s)
		}, map[string]string{
			"make_plan":      "make_plan",
			"make_draft":     "make_draft",
			"validate_draft": "validate_draft",
			"handle_error":   "handle_error",
			"give_up":        "give_up",
			"end":            stategraph.END,
		}).
		AddEdge("make_plan", "router").
		AddEdge("make_draft", "router").
		AddEdge("validate_draft", "router").
		AddEdge("handle_error", "router").
		AddEdge("give_up", stategraph.END).
		SetMaxIterations(refineIterationCap(deps.MaxAttempts))

	compiled, err := compile("refine", g, deps)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		Name:        "refine",
		Description: "Plan, draft and validate an answer, retrying up to the attempt budget.",
		InputField:  RefineRaw.Name(),
		OutputField: RefineFinal.Name(),
		Example:     "What is the capital of France?",
		Graph:       compiled,
	}, nil
}

// refineIterationCap covers the longest legal run: every attempt replans
// (six steps), plus clean_input, router, give_up and slack.
func refineIterationCap(maxAttempts int) int {
	return max(stategraph.DefaultMaxIterations, 6*maxAttempts+6)
}
