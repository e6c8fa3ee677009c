// Package phenotype turns a validated genome into a live, executable borg
// instance: instantiated cells, organ bindings through the bridge, and an
// exact cost bound for admission.
package phenotype

import "fmt"

// BuildError reports a failed phenotype construction. Builds are atomic:
// when this is returned, every partially-acquired resource has already
// been released.
type BuildError struct {
	Stage   string
	Message string
	cause   error
}

func (e *BuildError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("phenotype build (%s): %s: %v", e.Stage, e.Message, e.cause)
	}
	return fmt.Sprintf("phenotype build (%s): %s", e.Stage, e.Message)
}

func (e *BuildError) Unwrap() error { return e.cause }

// ErrClosed is returned by operations on a phenotype after Close.
var ErrClosed = fmt.Errorf("phenotype: closed")
