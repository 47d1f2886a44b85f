package bench

import "fmt"

// Stage names the step of a size trial that failed.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageCPU      Stage = "cpu"
	StageBuild    Stage = "build"
	StageDispatch Stage = "dispatch"
	StageReport   Stage = "report"
)

// StageError is a fatal error in one size trial.
type StageError struct {
	Stage Stage
	Size  int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for size %d: %v", e.Stage, e.Size, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, size int, err error) error {
	return &StageError{Stage: stage, Size: size, Err: err}
}
