// Package tools routes agent function calls to local actions. Every call
// produces a result text for the agent, including calls that fail.
package tools

import (
	"errors"
	"fmt"
	"strings"
)

const StartExerciseName = "startExercise"

var (
	// ErrToolLookup means the agent named a function this router does not
	// implement.
	ErrToolLookup = errors.New("unknown tool")
	// ErrInvalidArguments means the arguments did not match the declared
	// schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Invocation is a tool call as received from the agent.
type Invocation struct {
	ID   string
	Name string
	Args map[string]any
}

// Call is a validated invocation. Each supported tool has one concrete type.
type Call interface {
	ToolName() string
}

type StartExercise struct {
	ExerciseID string
}

func (StartExercise) ToolName() string { return StartExerciseName }

// Parse validates an invocation against the known schemas.
func Parse(inv Invocation) (Call, error) {
	switch inv.Name {
	case StartExerciseName:
		raw, ok := inv.Args["exerciseId"]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires exerciseId", ErrInvalidArguments, inv.Name)
		}
		id, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: exerciseId must be a string, got %T", ErrInvalidArguments, raw)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: exerciseId is empty", ErrInvalidArguments)
		}
		return StartExercise{ExerciseID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrToolLookup, inv.Name)
	}
}
