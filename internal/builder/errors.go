package builder

import (
	"fmt"
	"strings"
)

// PrerequisiteError reports required tooling that is absent. It fails the
// run before any execution unit starts.
type PrerequisiteError struct {
	Missing []string
}

func (e *PrerequisiteError) Error() string {
	return "missing prerequisites: " + strings.Join(e.Missing, "; ")
}

// BuildStepError wraps a failure inside a step's build function, either a
// non-zero tool exit or a recovered panic.
type BuildStepError struct {
	Step string
	Err  error
}

func (e *BuildStepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *BuildStepError) Unwrap() error {
	return e.Err
}

// CancellationError marks a step that never got to finish because a
// dependency failed. It is distinct from BuildStepError: the step itself
// did nothing wrong.
type CancellationError struct {
	Step       string
	Dependency string
}

func (e *CancellationError) Error() string {
	if e.Dependency == "" {
		return fmt.Sprintf("step %s cancelled", e.Step)
	}
	return fmt.Sprintf("step %s cancelled: dependency %s failed", e.Step, e.Dependency)
}

// RunError is the aggregate outcome of a failed run, naming every step that
// failed and every step cancelled in the cascade.
type RunError struct {
	Failed    []string
	Cancelled []string
}

func (e *RunError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(e.Failed, ", "))
	}
	if len(e.Cancelled) > 0 {
		parts = append(parts, "cancelled: "+strings.Join(e.Cancelled, ", "))
	}
	return "the following failures were reported: " + strings.Join(parts, "; ")
}

// Names returns every affected step name, failed first, for the final
// report printed to the error stream.
func (e *RunError) Names() []string {
	names := make([]string, 0, len(e.Failed)+len(e.Cancelled))
	names = append(names, e.Failed...)
	names = append(names, e.Cancelled...)
	return names
}
