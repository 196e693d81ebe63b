package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// fakeProvider scripts provider behaviour for orchestrator tests.
type fakeProvider struct {
	needsIdentity bool

	createErr    error
	statusErr    error
	allocateErr  error
	associateErr error

	destroyErr error
	releaseErr error

	// pendingPolls is how many status polls report pending before ready.
	pendingPolls int
	failStatus   bool

	createCalls    int
	destroyCalls   int
	allocateCalls  int
	associateCalls int
	releaseCalls   int
	statusCalls    int

	// undoOrder records compensation invocations by name.
	undoOrder []string
}

func (f *fakeProvider) Name() inventory.Provider { return inventory.ProviderHetzner }

func (f *fakeProvider) RequiresNetworkIdentity() bool { return f.needsIdentity }

func (f *fakeProvider) CreateResource(ctx context.Context, spec *Spec) (*Resource, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Resource{ID: "res-1", Status: StatusPending}, nil
}

func (f *fakeProvider) GetResourceStatus(ctx context.Context, id string) (*Resource, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.failStatus {
		return &Resource{ID: id, Status: StatusFailed}, nil
	}
	if f.statusCalls <= f.pendingPolls {
		return &Resource{ID: id, Status: StatusPending}, nil
	}
	return &Resource{ID: id, Address: "203.0.113.10", Status: StatusReady}, nil
}

func (f *fakeProvider) DestroyResource(ctx context.Context, id string) error {
	f.destroyCalls++
	f.undoOrder = append(f.undoOrder, "destroy:"+id)
	return f.destroyErr
}

func (f *fakeProvider) AllocateNetworkIdentity(ctx context.Context, region string) (*NetworkIdentity, error) {
	f.allocateCalls++
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	return &NetworkIdentity{ID: "ip-1", Address: "198.51.100.7"}, nil
}

func (f *fakeProvider) AssociateNetworkIdentity(ctx context.Context, identityID, resourceID string) error {
	f.associateCalls++
	return f.associateErr
}

func (f *fakeProvider) ReleaseNetworkIdentity(ctx context.Context, identityID string) error {
	f.releaseCalls++
	f.undoOrder = append(f.undoOrder, "release:"+identityID)
	return f.releaseErr
}

func testRegistry(t *testing.T) *inventory.Registry {
	t.Helper()
	store, err := inventory.Open(filepath.Join(t.TempDir(), "inventory.yml"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return inventory.NewRegistry(store)
}

func testSpec() *Spec {
	return &Spec{
		Name:           "web1",
		Provider:       inventory.ProviderHetzner,
		Region:         "fsn1",
		Size:           "cx22",
		Image:          "ubuntu-24.04",
		SSHKeys:        []string{"ops"},
		Username:       "root",
		CredentialPath: "/tmp/id_ed25519",
	}
}

func testOrchestrator(t *testing.T, provider *fakeProvider, registry *inventory.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithReadyPolling(time.Millisecond, time.Second),
		WithVerifyFunc(func(ctx context.Context, server *inventory.ServerRecord) error {
			return nil
		}),
	}
	return New(provider, registry, append(base, opts...)...)
}

func TestProvisionSuccess(t *testing.T) {
	provider := &fakeProvider{pendingPolls: 2}
	registry := testRegistry(t)

	var states []State
	o := testOrchestrator(t, provider, registry, WithStateFunc(func(s State) {
		states = append(states, s)
	}))

	record, err := o.Provision(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if record.Host != "203.0.113.10" {
		t.Errorf("expected host from provider, got %q", record.Host)
	}
	if record.ProviderResourceID != "res-1" {
		t.Errorf("expected resource id res-1, got %q", record.ProviderResourceID)
	}
	if provider.destroyCalls != 0 {
		t.Errorf("expected no rollback on success, destroy called %d times", provider.destroyCalls)
	}

	stored, err := registry.GetServer("web1")
	if err != nil {
		t.Fatalf("expected server registered in inventory: %v", err)
	}
	if stored.Provider != inventory.ProviderHetzner {
		t.Errorf("expected provider hetzner, got %q", stored.Provider)
	}

	want := []State{
		StateValidating,
		StateCreatingResource,
		StateAwaitingReady,
		StateVerifyingConnectivity,
		StateRegisteringInInventory,
		StateDone,
	}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d: expected %s, got %s", i, want[i], states[i])
		}
	}
}

func TestProvisionWithNetworkIdentity(t *testing.T) {
	provider := &fakeProvider{needsIdentity: true}
	registry := testRegistry(t)
	o := testOrchestrator(t, provider, registry)

	record, err := o.Provision(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if record.Host != "198.51.100.7" {
		t.Errorf("expected identity address as host, got %q", record.Host)
	}
	if provider.associateCalls != 1 {
		t.Errorf("expected one associate call, got %d", provider.associateCalls)
	}
}

func TestProvisionValidationCreatesNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"missing name", func(s *Spec) { s.Name = "" }},
		{"missing region", func(s *Spec) { s.Region = "" }},
		{"no ssh keys", func(s *Spec) { s.SSHKeys = nil }},
		{"wrong provider", func(s *Spec) { s.Provider = inventory.ProviderDigitalOcean }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			o := testOrchestrator(t, provider, testRegistry(t))

			spec := testSpec()
			tt.mutate(spec)

			_, err := o.Provision(context.Background(), spec)
			if !IsValidationError(err) {
				t.Fatalf("expected validation error, got: %v", err)
			}
			if provider.createCalls != 0 {
				t.Errorf("expected no create calls, got %d", provider.createCalls)
			}
		})
	}
}

func TestProvisionRejectsDuplicateName(t *testing.T) {
	registry := testRegistry(t)
	if err := registry.AddServer(&inventory.ServerRecord{Name: "web1", Host: "10.0.0.1", Port: 22, Username: "root"}); err != nil {
		t.Fatalf("failed to seed registry: %v", err)
	}

	provider := &fakeProvider{}
	o := testOrchestrator(t, provider, registry)

	_, err := o.Provision(context.Background(), testSpec())
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got: %v", err)
	}
	var dup *inventory.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateNameError in chain, got: %v", err)
	}
	if provider.createCalls != 0 {
		t.Errorf("expected no create calls, got %d", provider.createCalls)
	}
}

func TestProvisionRollsBackInReverseOrder(t *testing.T) {
	provider := &fakeProvider{
		needsIdentity: true,
		associateErr:  fmt.Errorf("assignment rejected"),
	}
	o := testOrchestrator(t, provider, testRegistry(t))

	_, err := o.Provision(context.Background(), testSpec())
	if err == nil {
		t.Fatal("expected provisioning to fail")
	}

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got: %v", err)
	}
	if pe.Kind != KindNetworkIdentity {
		t.Errorf("expected kind %s, got %s", KindNetworkIdentity, pe.Kind)
	}
	if len(pe.CleanupFailures) != 0 {
		t.Errorf("expected clean rollback, got failures: %v", pe.CleanupFailures)
	}

	want := []string{"release:ip-1", "destroy:res-1"}
	if len(provider.undoOrder) != len(want) {
		t.Fatalf("expected undo order %v, got %v", want, provider.undoOrder)
	}
	for i := range want {
		if provider.undoOrder[i] != want[i] {
			t.Errorf("undo %d: expected %s, got %s", i, want[i], provider.undoOrder[i])
		}
	}
}

func TestProvisionRollbackSurvivesCompensationFailure(t *testing.T) {
	provider := &fakeProvider{
		needsIdentity: true,
		associateErr:  fmt.Errorf("assignment rejected"),
		releaseErr:    fmt.Errorf("ip api unavailable"),
	}
	o := testOrchestrator(t, provider, testRegistry(t))

	_, err := o.Provision(context.Background(), testSpec())

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got: %v", err)
	}
	if !errors.Is(err, provider.associateErr) {
		t.Errorf("expected original error preserved, got: %v", err)
	}
	if len(pe.CleanupFailures) != 1 {
		t.Fatalf("expected one cleanup failure, got %d", len(pe.CleanupFailures))
	}
	if pe.CleanupFailures[0].ResourceID != "ip-1" {
		t.Errorf("expected failed cleanup of ip-1, got %q", pe.CleanupFailures[0].ResourceID)
	}
	// The failed release must not stop the destroy compensation.
	if provider.destroyCalls != 1 {
		t.Errorf("expected destroy still attempted, got %d calls", provider.destroyCalls)
	}
}

func TestProvisionReadyTimeout(t *testing.T) {
	provider := &fakeProvider{pendingPolls: 1 << 30}
	o := testOrchestrator(t, provider, testRegistry(t),
		WithReadyPolling(time.Millisecond, 20*time.Millisecond))

	_, err := o.Provision(context.Background(), testSpec())
	if !IsTimeoutError(err) {
		t.Fatalf("expected timeout error, got: %v", err)
	}
	if provider.destroyCalls != 1 {
		t.Errorf("expected resource destroyed after timeout, got %d calls", provider.destroyCalls)
	}
}

func TestProvisionTerminalStatusRollsBack(t *testing.T) {
	provider := &fakeProvider{failStatus: true}
	o := testOrchestrator(t, provider, testRegistry(t))

	_, err := o.Provision(context.Background(), testSpec())

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got: %v", err)
	}
	if pe.Kind != KindState {
		t.Errorf("expected kind %s, got %s", KindState, pe.Kind)
	}
	if provider.destroyCalls != 1 {
		t.Errorf("expected resource destroyed, got %d calls", provider.destroyCalls)
	}
}

func TestProvisionConnectivityFailureRollsBack(t *testing.T) {
	provider := &fakeProvider{}
	o := testOrchestrator(t, provider, testRegistry(t),
		WithVerifyFunc(func(ctx context.Context, server *inventory.ServerRecord) error {
			return fmt.Errorf("connection refused")
		}))

	_, err := o.Provision(context.Background(), testSpec())

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got: %v", err)
	}
	if pe.Kind != KindConnectivity {
		t.Errorf("expected kind %s, got %s", KindConnectivity, pe.Kind)
	}
	if provider.destroyCalls != 1 {
		t.Errorf("expected resource destroyed, got %d calls", provider.destroyCalls)
	}
}
