// Package errdefs defines the error kinds shared by the build and remote layers.
//
// Every error returned by azkit packages wraps exactly one of the sentinel
// kinds below, so callers classify failures with errors.Is and never by
// matching message text.
package errdefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks malformed input: relative paths, unknown jobs,
	// malformed endpoints.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks a duplicate registration or a config edit already in
	// progress.
	ErrConflict = errors.New("conflict")

	// ErrMissingResource marks a referenced file or archive absent on disk.
	ErrMissingResource = errors.New("missing resource")

	// ErrAuthentication marks a login rejected by the remote service.
	ErrAuthentication = errors.New("authentication failed")

	// ErrSessionExhausted marks a request abandoned after the refresh budget ran out.
	ErrSessionExhausted = errors.New("session refresh attempts exhausted")

	// ErrRemoteOperation marks a server-reported failure on a well-formed request.
	ErrRemoteOperation = errors.New("remote operation failed")

	// ErrMalformedEndpoint is the validation error for endpoints with more than one '@'.
	ErrMalformedEndpoint = fmt.Errorf("%w: malformed endpoint", ErrValidation)
)

// MissingJobsError reports job names requested for a run that are not nodes of the flow.
type MissingJobsError struct {
	Flow  string
	Names []string
}

func (e *MissingJobsError) Error() string {
	names := append([]string(nil), e.Names...)
	sort.Strings(names)
	return fmt.Sprintf("jobs not found in flow %q: %s", e.Flow, strings.Join(names, ", "))
}

func (e *MissingJobsError) Unwrap() error { return ErrValidation }

// FlowNotFoundError reports a flow-info response that could not be parsed,
// which is how the remote service signals an unknown flow.
type FlowNotFoundError struct {
	Project string
	Flow    string
	Err     error
}

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("flow %q not found in project %q", e.Flow, e.Project)
}

func (e *FlowNotFoundError) Unwrap() []error { return []error{ErrRemoteOperation, e.Err} }

// Remote wraps a server-reported message as a remote operation error. The
// message is kept verbatim.
func Remote(msg string) error {
	return fmt.Errorf("%w: %s", ErrRemoteOperation, msg)
}
