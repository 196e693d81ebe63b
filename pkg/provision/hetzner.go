package provision

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// HetznerProvider provisions Hetzner Cloud servers. Hetzner assigns a
// public IPv4 at creation time, so no separate network identity is
// needed.
type HetznerProvider struct {
	client *hcloud.Client
}

// NewHetznerProvider creates a provider authenticated with token.
func NewHetznerProvider(token string) *HetznerProvider {
	return &HetznerProvider{
		client: hcloud.NewClient(hcloud.WithToken(token)),
	}
}

func (p *HetznerProvider) Name() inventory.Provider {
	return inventory.ProviderHetzner
}

func (p *HetznerProvider) RequiresNetworkIdentity() bool {
	return false
}

func (p *HetznerProvider) CreateResource(ctx context.Context, spec *Spec) (*Resource, error) {
	sshKeys := make([]*hcloud.SSHKey, 0, len(spec.SSHKeys))
	for _, name := range spec.SSHKeys {
		key, _, err := p.client.SSHKey.GetByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up ssh key %q: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("ssh key %q not found in hetzner project", name)
		}
		sshKeys = append(sshKeys, key)
	}

	opts := hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: &hcloud.ServerType{Name: spec.Size},
		Image:      &hcloud.Image{Name: spec.Image},
		Location:   &hcloud.Location{Name: spec.Region},
		SSHKeys:    sshKeys,
		UserData:   spec.UserData,
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: true,
			EnableIPv6: false,
		},
	}

	result, _, err := p.client.Server.Create(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return hetznerResource(result.Server), nil
}

func (p *HetznerProvider) GetResourceStatus(ctx context.Context, id string) (*Resource, error) {
	serverID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid hetzner server id %q: %w", id, err)
	}
	server, _, err := p.client.Server.GetByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	if server == nil {
		return nil, fmt.Errorf("server %s not found", id)
	}
	return hetznerResource(server), nil
}

func (p *HetznerProvider) DestroyResource(ctx context.Context, id string) error {
	serverID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hetzner server id %q: %w", id, err)
	}
	_, _, err = p.client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: serverID})
	if err != nil {
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}
	return nil
}

func (p *HetznerProvider) AllocateNetworkIdentity(ctx context.Context, region string) (*NetworkIdentity, error) {
	return nil, fmt.Errorf("hetzner servers receive a public address at creation")
}

func (p *HetznerProvider) AssociateNetworkIdentity(ctx context.Context, identityID, resourceID string) error {
	return fmt.Errorf("hetzner servers receive a public address at creation")
}

func (p *HetznerProvider) ReleaseNetworkIdentity(ctx context.Context, identityID string) error {
	return fmt.Errorf("hetzner servers receive a public address at creation")
}

func hetznerResource(server *hcloud.Server) *Resource {
	resource := &Resource{
		ID:     strconv.FormatInt(server.ID, 10),
		Status: StatusPending,
	}
	if server.PublicNet.IPv4.IP != nil {
		resource.Address = server.PublicNet.IPv4.IP.String()
	}
	switch server.Status {
	case hcloud.ServerStatusRunning:
		resource.Status = StatusReady
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting, hcloud.ServerStatusOff:
		resource.Status = StatusPending
	case hcloud.ServerStatusDeleting, hcloud.ServerStatusUnknown:
		resource.Status = StatusFailed
	}
	return resource
}
