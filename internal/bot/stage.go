package bot

import "github.com/pkg/errors"

const (
	stageFetch    = "fetch"
	stageFeatures = "features"
	stageSignals  = "signals"
	stageExecute  = "execute"
	stagePanic    = "panic"
)

// stageError tags a per-symbol failure with the step it happened in.
type stageError struct {
	stage string
	err   error
}

func withStage(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}
