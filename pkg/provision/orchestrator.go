package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/loadinglucian/shipmate/pkg/inventory"
	"github.com/loadinglucian/shipmate/pkg/telemetry"
	"github.com/loadinglucian/shipmate/pkg/transports/ssh"
)

// compensation is a recorded undo action for one successful step.
type compensation struct {
	step       string
	resourceID string
	undo       func(ctx context.Context) error
}

// VerifyFunc checks that an authenticated session can be opened against
// the freshly provisioned host.
type VerifyFunc func(ctx context.Context, server *inventory.ServerRecord) error

// Recorder persists provisioning run outcomes.
type Recorder interface {
	RecordProvision(ctx context.Context, provider, name, status, resourceID string, duration time.Duration, message string) error
}

// Orchestrator drives the provisioning state machine against one
// provider.
type Orchestrator struct {
	provider Provider
	registry *inventory.Registry
	validate *validator.Validate
	verify   VerifyFunc

	pollInterval time.Duration
	readyTimeout time.Duration

	metrics  *telemetry.Metrics
	recorder Recorder
	stateFn  func(State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerifyFunc overrides the connectivity check.
func WithVerifyFunc(verify VerifyFunc) Option {
	return func(o *Orchestrator) { o.verify = verify }
}

// WithReadyPolling overrides the readiness poll interval and timeout.
func WithReadyPolling(interval, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = interval
		o.readyTimeout = timeout
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder attaches a run history recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithStateFunc attaches an observer invoked on every state transition.
func WithStateFunc(fn func(State)) Option {
	return func(o *Orchestrator) { o.stateFn = fn }
}

// New creates an orchestrator for provider, registering results in
// registry.
func New(provider Provider, registry *inventory.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     provider,
		registry:     registry,
		validate:     validator.New(),
		verify:       verifyOverSSH,
		pollInterval: 5 * time.Second,
		readyTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// verifyOverSSH is the default connectivity check: open and close one
// authenticated session.
func verifyOverSSH(ctx context.Context, server *inventory.ServerRecord) error {
	channel, err := ssh.NewChannel(ssh.DefaultConfig(server.Host, server.Username, server.CredentialPath))
	if err != nil {
		return err
	}
	return channel.Verify(ctx)
}

// Provision runs the full state sequence and returns the registered
// server record. On any failure after resource creation, recorded
// compensations are executed in reverse order and the original error is
// returned, annotated with any compensation that itself failed.
func (o *Orchestrator) Provision(ctx context.Context, spec *Spec) (*inventory.ServerRecord, error) {
	startTime := time.Now()

	record, err := o.provision(ctx, spec)

	status := "success"
	resourceID := ""
	message := ""
	if err != nil {
		status = "error"
		message = err.Error()
		var pe *Error
		if errors.As(err, &pe) {
			resourceID = pe.ResourceID
		}
	} else {
		resourceID = record.ProviderResourceID
	}
	o.metrics.ObserveProvisionRun(string(o.provider.Name()), status)
	if o.recorder != nil {
		if rerr := o.recorder.RecordProvision(ctx, string(o.provider.Name()), spec.Name, status, resourceID, time.Since(startTime), message); rerr != nil {
			log.Warn().Err(rerr).Str("name", spec.Name).Msg("failed to record provisioning history")
		}
	}

	return record, err
}

func (o *Orchestrator) provision(ctx context.Context, spec *Spec) (*inventory.ServerRecord, error) {
	providerName := o.provider.Name()

	// Validating: nothing has been created yet, so failures here need no
	// rollback.
	o.enterState(StateValidating)
	if err := o.validateSpec(spec); err != nil {
		return nil, &Error{Kind: KindValidation, State: StateValidating, Provider: providerName, Err: err}
	}

	var compensations []compensation

	fail := func(kind ErrorKind, state State, resourceID string, err error) error {
		pe := &Error{
			Kind:       kind,
			State:      state,
			Provider:   providerName,
			ResourceID: resourceID,
			Err:        err,
		}
		pe.CleanupFailures = o.rollback(ctx, compensations)
		return pe
	}

	// CreatingResource
	o.enterState(StateCreatingResource)
	resource, err := o.provider.CreateResource(ctx, spec)
	if err != nil {
		return nil, fail(KindResourceCreation, StateCreatingResource, "", err)
	}
	log.Info().
		Str("provider", string(providerName)).
		Str("resource_id", resource.ID).
		Str("name", spec.Name).
		Msg("resource created")
	compensations = append(compensations, compensation{
		step:       "destroy resource",
		resourceID: resource.ID,
		undo: func(ctx context.Context) error {
			return o.provider.DestroyResource(ctx, resource.ID)
		},
	})

	// AwaitingReady
	o.enterState(StateAwaitingReady)
	resource, err = o.awaitReady(ctx, resource.ID)
	if err != nil {
		kind := KindState
		if IsTimeoutError(err) {
			kind = KindTimeout
		}
		return nil, fail(kind, StateAwaitingReady, resource.ID, err)
	}

	address := resource.Address

	// AllocatingNetworkIdentity / AssociatingNetworkIdentity
	if o.provider.RequiresNetworkIdentity() {
		o.enterState(StateAllocatingNetworkIdentity)
		identity, err := o.provider.AllocateNetworkIdentity(ctx, spec.Region)
		if err != nil {
			return nil, fail(KindNetworkIdentity, StateAllocatingNetworkIdentity, resource.ID, err)
		}
		log.Info().
			Str("identity_id", identity.ID).
			Str("address", identity.Address).
			Msg("network identity allocated")
		compensations = append(compensations, compensation{
			step:       "release network identity",
			resourceID: identity.ID,
			undo: func(ctx context.Context) error {
				return o.provider.ReleaseNetworkIdentity(ctx, identity.ID)
			},
		})

		// Association is covered by the release compensation above.
		o.enterState(StateAssociatingNetworkIdentity)
		if err := o.provider.AssociateNetworkIdentity(ctx, identity.ID, resource.ID); err != nil {
			return nil, fail(KindNetworkIdentity, StateAssociatingNetworkIdentity, resource.ID, err)
		}
		address = identity.Address
	}

	if address == "" {
		return nil, fail(KindState, StateAssociatingNetworkIdentity, resource.ID,
			fmt.Errorf("provider reported no public address for resource %s", resource.ID))
	}

	record := &inventory.ServerRecord{
		Name:               spec.Name,
		Host:               address,
		Port:               22,
		Username:           spec.Username,
		CredentialPath:     spec.CredentialPath,
		Provider:           providerName,
		ProviderResourceID: resource.ID,
	}

	// VerifyingConnectivity
	o.enterState(StateVerifyingConnectivity)
	if err := o.verify(ctx, record); err != nil {
		return nil, fail(KindConnectivity, StateVerifyingConnectivity, resource.ID, err)
	}

	// RegisteringInInventory
	o.enterState(StateRegisteringInInventory)
	if err := o.registry.AddServer(record); err != nil {
		return nil, fail(KindRegistration, StateRegisteringInInventory, resource.ID, err)
	}

	o.enterState(StateDone)
	log.Info().
		Str("name", record.Name).
		Str("host", record.Host).
		Str("resource_id", record.ProviderResourceID).
		Msg("server provisioned")

	return record, nil
}

// validateSpec checks the spec structurally and rejects names already
// taken in the inventory, before anything external is created.
func (o *Orchestrator) validateSpec(spec *Spec) error {
	if err := o.validate.Struct(spec); err != nil {
		return err
	}
	if spec.Provider != o.provider.Name() {
		return fmt.Errorf("spec targets provider %q but orchestrator drives %q", spec.Provider, o.provider.Name())
	}
	if _, err := o.registry.GetServer(spec.Name); err == nil {
		return &inventory.DuplicateNameError{Kind: "server", Name: spec.Name}
	}
	return nil
}

// awaitReady polls the resource status at a fixed interval until it is
// ready, terminally failed, or the timeout elapses.
func (o *Orchestrator) awaitReady(ctx context.Context, resourceID string) (*Resource, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	timeout := time.After(o.readyTimeout)

	for {
		select {
		case <-ctx.Done():
			return &Resource{ID: resourceID}, ctx.Err()
		case <-timeout:
			return &Resource{ID: resourceID}, &Error{
				Kind: KindTimeout,
				Err:  fmt.Errorf("resource %s not ready after %s", resourceID, o.readyTimeout),
			}
		case <-ticker.C:
			resource, err := o.provider.GetResourceStatus(ctx, resourceID)
			if err != nil {
				return &Resource{ID: resourceID}, err
			}
			switch resource.Status {
			case StatusReady:
				return resource, nil
			case StatusFailed:
				return resource, fmt.Errorf("resource %s entered terminal failure status", resourceID)
			default:
				log.Debug().
					Str("resource_id", resourceID).
					Str("status", string(resource.Status)).
					Msg("waiting for resource")
			}
		}
	}
}

// rollback drains the compensation stack in reverse order. Every
// compensation is attempted regardless of earlier failures; failures are
// logged and collected, never thrown, so the triggering error stays the
// one the caller sees.
func (o *Orchestrator) rollback(ctx context.Context, compensations []compensation) []CleanupFailure {
	if len(compensations) == 0 {
		return nil
	}

	o.enterState(StateRollingBack)
	providerName := string(o.provider.Name())

	var failures []CleanupFailure
	for i := len(compensations) - 1; i >= 0; i-- {
		c := compensations[i]
		log.Warn().
			Str("step", c.step).
			Str("resource_id", c.resourceID).
			Msg("rolling back")

		if err := c.undo(ctx); err != nil {
			log.Error().
				Err(err).
				Str("step", c.step).
				Str("resource_id", c.resourceID).
				Msg("compensation failed, manual cleanup required")
			failures = append(failures, CleanupFailure{Step: c.step, ResourceID: c.resourceID, Err: err})
			o.metrics.ObserveCompensation(providerName, "error")
			continue
		}
		o.metrics.ObserveCompensation(providerName, "success")
	}
	return failures
}

func (o *Orchestrator) enterState(state State) {
	log.Debug().Str("state", string(state)).Msg("provisioning state")
	if o.stateFn != nil {
		o.stateFn(state)
	}
}
