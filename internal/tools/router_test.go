package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gback-app/coach-engine/internal/catalog"
)

type recordingOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *recordingOpener) OpenExercise(_ context.Context, ex catalog.Exercise) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, ex.ID)
	return o.err
}

func newTestRouter(opener Opener) *Router {
	return NewRouter(catalog.Default(), opener, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchStartsKnownExercise(t *testing.T) {
	opener := &recordingOpener{}
	router := newTestRouter(opener)

	res, err := router.Dispatch(context.Background(), Invocation{
		ID:   "call-1",
		Name: StartExerciseName,
		Args: map[string]any{"exerciseId": "cat_cow"},
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "call-1", res.CallID)
	assert.Equal(t, StartExerciseName, res.Name)
	assert.Equal(t, "Success. I have opened the Cat-Cow Stretch exercise for the user.", res.Text)
	assert.Equal(t, []string{"cat_cow"}, opener.opened)
}

func TestDispatchUnknownExerciseIsData(t *testing.T) {
	opener := &recordingOpener{}
	router := newTestRouter(opener)

	res, err := router.Dispatch(context.Background(), Invocation{
		Name: StartExerciseName,
		Args: map[string]any{"exerciseId": "yoga_99"},
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Error. Exercise ID yoga_99 not found.", res.Text)
	assert.Empty(t, opener.opened)
}

func TestDispatchUnknownTool(t *testing.T) {
	opener := &recordingOpener{}
	router := newTestRouter(opener)

	res, err := router.Dispatch(context.Background(), Invocation{ID: "x", Name: "deleteAccount"})

	require.ErrorIs(t, err, ErrToolLookup)
	assert.Equal(t, "Error. Unknown function deleteAccount.", res.Text)
	assert.Equal(t, "x", res.CallID)
	assert.Empty(t, opener.opened)
}

func TestDispatchInvalidArguments(t *testing.T) {
	router := newTestRouter(&recordingOpener{})

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing", args: map[string]any{}},
		{name: "nil args", args: nil},
		{name: "not a string", args: map[string]any{"exerciseId": 42.0}},
		{name: "blank", args: map[string]any{"exerciseId": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := router.Dispatch(context.Background(), Invocation{Name: StartExerciseName, Args: tt.args})
			require.ErrorIs(t, err, ErrInvalidArguments)
			assert.False(t, res.OK)
			assert.Contains(t, res.Text, "Invalid arguments")
		})
	}
}

func TestDispatchOpenerFailure(t *testing.T) {
	opener := &recordingOpener{err: errors.New("ui gone")}
	router := newTestRouter(opener)

	res, err := router.Dispatch(context.Background(), Invocation{
		Name: StartExerciseName,
		Args: map[string]any{"exerciseId": "bird_dog"},
	})

	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Error. Could not open the Bird-Dog exercise.", res.Text)
}

func TestSpecsListCatalogIDs(t *testing.T) {
	router := newTestRouter(&recordingOpener{})

	specs := router.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, StartExerciseName, specs[0].Name)

	prop := specs[0].Parameters.Properties["exerciseId"]
	assert.Equal(t, catalog.Default().IDs(), prop.Enum)
	assert.Contains(t, prop.Description, "cat_cow")
	assert.Equal(t, []string{"exerciseId"}, specs[0].Parameters.Required)
}

func TestParseTrimsExerciseID(t *testing.T) {
	call, err := Parse(Invocation{Name: StartExerciseName, Args: map[string]any{"exerciseId": " child_pose "}})
	require.NoError(t, err)
	assert.Equal(t, StartExercise{ExerciseID: "child_pose"}, call)
	assert.Equal(t, StartExerciseName, call.ToolName())
}

func TestResultToolResult(t *testing.T) {
	res := Result{CallID: "c", Name: StartExerciseName, Text: "ok"}
	got := res.ToolResult()
	assert.Equal(t, "c", got.CallID)
	assert.Equal(t, "ok", got.Content)
}
