package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoDocuments is returned (wrapped in a StageError) when collection yields nothing to embed.
var ErrNoDocuments = errors.New("no documents collected from the configured sources")

// StageError records the stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage err was raised in, or "" when err carries none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
