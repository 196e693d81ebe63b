package provision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// State names a step of the provisioning sequence.
type State string

const (
	StateValidating                 State = "validating"
	StateCreatingResource           State = "creating_resource"
	StateAwaitingReady              State = "awaiting_ready"
	StateAllocatingNetworkIdentity  State = "allocating_network_identity"
	StateAssociatingNetworkIdentity State = "associating_network_identity"
	StateVerifyingConnectivity      State = "verifying_connectivity"
	StateRegisteringInInventory     State = "registering_in_inventory"
	StateDone                       State = "done"
	StateRollingBack                State = "rolling_back"
)

// ErrorKind classifies a provisioning failure.
type ErrorKind string

const (
	// KindValidation means nothing was created.
	KindValidation ErrorKind = "validation"

	// KindResourceCreation means the provider rejected or failed the
	// create request.
	KindResourceCreation ErrorKind = "resource_creation"

	// KindTimeout means the resource never became ready in time.
	KindTimeout ErrorKind = "timeout"

	// KindState means the resource entered a terminal failure status.
	KindState ErrorKind = "state"

	// KindNetworkIdentity means allocating or associating the public
	// address failed.
	KindNetworkIdentity ErrorKind = "network_identity"

	// KindConnectivity means the resolved address did not accept an
	// authenticated session.
	KindConnectivity ErrorKind = "connectivity"

	// KindRegistration means persisting the inventory record failed.
	KindRegistration ErrorKind = "registration"
)

// CleanupFailure records a compensation that itself failed during
// rollback, so the operator knows what to clean up manually.
type CleanupFailure struct {
	// Step names the compensation, e.g. "destroy resource".
	Step string

	// ResourceID identifies the orphaned external resource.
	ResourceID string

	// Err is the compensation's failure.
	Err error
}

// Error is the failure of one provisioning run. Rollback failures never
// mask the triggering error: they are carried in CleanupFailures.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// State is the step in which the failure occurred.
	State State

	// Provider is the cloud the run targeted.
	Provider inventory.Provider

	// ResourceID is the external resource identifier, if one was created.
	ResourceID string

	// Err is the underlying error.
	Err error

	// CleanupFailures lists compensations that failed while rolling back.
	CleanupFailures []CleanupFailure
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provisioning failed in %s (%s): %v", e.State, e.Provider, e.Err)
	if len(e.CleanupFailures) > 0 {
		parts := make([]string, 0, len(e.CleanupFailures))
		for _, cf := range e.CleanupFailures {
			parts = append(parts, fmt.Sprintf("%s of %s: %v", cf.Step, cf.ResourceID, cf.Err))
		}
		msg += "; manual cleanup required: " + strings.Join(parts, ", ")
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err failed validation, meaning no
// external resource was created.
func IsValidationError(err error) bool {
	return errorKind(err) == KindValidation
}

// IsTimeoutError reports whether err was a readiness-wait timeout.
func IsTimeoutError(err error) bool {
	return errorKind(err) == KindTimeout
}

func errorKind(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
