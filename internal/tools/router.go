package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/llm"
)

// Opener performs the "open exercise" side effect.
type Opener interface {
	OpenExercise(ctx context.Context, ex catalog.Exercise) error
}

type OpenerFunc func(ctx context.Context, ex catalog.Exercise) error

func (f OpenerFunc) OpenExercise(ctx context.Context, ex catalog.Exercise) error {
	return f(ctx, ex)
}

// Result is what gets sent back to the agent.
type Result struct {
	CallID string
	Name   string
	Text   string
	OK     bool
}

func (r Result) ToolResult() llm.ToolResult {
	return llm.ToolResult{CallID: r.CallID, Name: r.Name, Content: r.Text}
}

type Router struct {
	catalog *catalog.Catalog
	opener  Opener
	logger  *slog.Logger
}

func NewRouter(c *catalog.Catalog, opener Opener, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{catalog: c, opener: opener, logger: logger}
}

// Specs declares the tools the agent may call. The exercise id is an enum of
// the catalog ids.
func (r *Router) Specs() []llm.ToolSpec {
	ids := r.catalog.IDs()
	return []llm.ToolSpec{{
		Name:        StartExerciseName,
		Description: "Opens the specific exercise modal for the user to start working out.",
		Parameters: llm.Schema{
			Properties: map[string]llm.Property{
				"exerciseId": {
					Type:        "string",
					Description: "The ID of the exercise to start. Available IDs: " + strings.Join(ids, ", "),
					Enum:        ids,
				},
			},
			Required: []string{"exerciseId"},
		},
	}}
}

// Dispatch runs one invocation. The returned Result is always meant for the
// agent; a non-nil error only classifies a failure for logging. Callers must
// not dispatch the same invocation id twice.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) (Result, error) {
	res := Result{CallID: inv.ID, Name: inv.Name}

	call, err := Parse(inv)
	switch {
	case errors.Is(err, ErrToolLookup):
		res.Text = fmt.Sprintf("Error. Unknown function %s.", inv.Name)
		r.logger.Warn("unknown tool call", "name", inv.Name, "id", inv.ID)
		return res, err
	case err != nil:
		res.Text = fmt.Sprintf("Error. Invalid arguments for %s.", inv.Name)
		r.logger.Warn("invalid tool arguments", "name", inv.Name, "id", inv.ID, "error", err)
		return res, err
	}

	switch c := call.(type) {
	case StartExercise:
		return r.startExercise(ctx, res, c)
	default:
		res.Text = fmt.Sprintf("Error. Unknown function %s.", inv.Name)
		return res, fmt.Errorf("%w: %q", ErrToolLookup, inv.Name)
	}
}

func (r *Router) startExercise(ctx context.Context, res Result, c StartExercise) (Result, error) {
	ex, ok := r.catalog.Get(c.ExerciseID)
	if !ok {
		r.logger.Info("exercise not found", "exercise_id", c.ExerciseID)
		res.Text = fmt.Sprintf("Error. Exercise ID %s not found.", c.ExerciseID)
		return res, nil
	}

	if err := r.opener.OpenExercise(ctx, ex); err != nil {
		res.Text = fmt.Sprintf("Error. Could not open the %s exercise.", ex.Title)
		return res, fmt.Errorf("open exercise %s: %w", ex.ID, err)
	}

	r.logger.Info("exercise opened", "exercise_id", ex.ID)
	res.Text = fmt.Sprintf("Success. I have opened the %s exercise for the user.", ex.Title)
	res.OK = true
	return res, nil
}
