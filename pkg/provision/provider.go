// Package provision creates cloud compute resources and registers them in
// the inventory.
//
// The state machine is written once against the Provider strategy
// interface; each supported cloud implements the same small operation set.
// Every step that creates something external records a compensating action
// so a failure later in the sequence can unwind cleanly.
package provision

import (
	"context"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// ResourceStatus is the provider-reported lifecycle status of a compute
// resource.
type ResourceStatus string

const (
	// StatusPending means the resource exists but is still coming up.
	StatusPending ResourceStatus = "pending"

	// StatusReady means the resource is running.
	StatusReady ResourceStatus = "ready"

	// StatusFailed means the resource entered a terminal failure state.
	StatusFailed ResourceStatus = "failed"
)

// Resource is the provider's view of a created compute resource.
type Resource struct {
	// ID is the provider-assigned opaque identifier.
	ID string

	// Address is the public address, once the provider has assigned one.
	Address string

	// Status is the current lifecycle status.
	Status ResourceStatus
}

// NetworkIdentity is an ephemeral public address allocated separately from
// the resource (floating/reserved IP).
type NetworkIdentity struct {
	ID      string
	Address string
}

// Spec describes the resource to provision.
type Spec struct {
	// Name becomes both the provider-side resource name and the inventory
	// record name.
	Name string `validate:"required,hostname_rfc1123"`

	Provider inventory.Provider `validate:"required"`

	// Region, Size and Image are provider-specific identifiers.
	Region string `validate:"required"`
	Size   string `validate:"required"`
	Image  string `validate:"required"`

	// SSHKeys holds provider-side key names, IDs or fingerprints. At least
	// one identity credential is required so the new host is reachable.
	SSHKeys []string `validate:"min=1"`

	// Username and CredentialPath fill the inventory record's connection
	// fields.
	Username       string `validate:"required"`
	CredentialPath string `validate:"required"`

	// UserData is optional cloud-init content.
	UserData string
}

// Provider is the strategy interface each cloud implements.
type Provider interface {
	// Name identifies the provider in records and errors.
	Name() inventory.Provider

	// RequiresNetworkIdentity reports whether a public address must be
	// allocated and associated separately after resource creation.
	RequiresNetworkIdentity() bool

	// CreateResource creates the compute resource. It returns as soon as
	// the provider accepts the request; readiness is polled separately.
	CreateResource(ctx context.Context, spec *Spec) (*Resource, error)

	// GetResourceStatus fetches the current status of a resource.
	GetResourceStatus(ctx context.Context, id string) (*Resource, error)

	// DestroyResource deletes the compute resource.
	DestroyResource(ctx context.Context, id string) error

	// AllocateNetworkIdentity allocates an ephemeral public address in
	// region.
	AllocateNetworkIdentity(ctx context.Context, region string) (*NetworkIdentity, error)

	// AssociateNetworkIdentity binds an allocated identity to a resource.
	AssociateNetworkIdentity(ctx context.Context, identityID, resourceID string) error

	// ReleaseNetworkIdentity frees an allocated identity.
	ReleaseNetworkIdentity(ctx context.Context, identityID string) error
}
