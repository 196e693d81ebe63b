package playbook

import (
	"fmt"
	"strings"
)

// ValidationError reports required parameter keys missing from a dispatch.
// It is raised before any network call is attempted.
type ValidationError struct {
	Playbook string
	Missing  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("playbook %q: missing required parameters: %s",
		e.Playbook, strings.Join(e.Missing, ", "))
}

// ExecutionError reports a playbook that ran but failed, either with a
// non-zero exit code or an error status in its result document. Stdout and
// stderr are carried verbatim for operator diagnosis.
type ExecutionError struct {
	Playbook string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("playbook %q failed with exit code %d", e.Playbook, e.ExitCode)
}

// OutputParseError reports a result document that could not be parsed as
// YAML or lacked the status key. Snippet carries the raw output for
// diagnosis.
type OutputParseError struct {
	Playbook string
	Snippet  string
	Err      error
}

func (e *OutputParseError) Error() string {
	return fmt.Sprintf("playbook %q: failed to parse result document: %v", e.Playbook, e.Err)
}

func (e *OutputParseError) Unwrap() error {
	return e.Err
}
