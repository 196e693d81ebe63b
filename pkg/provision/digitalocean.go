package provision

import (
	"context"
	"fmt"
	"strconv"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// DigitalOceanProvider provisions DigitalOcean droplets. Droplets are
// addressed through a reserved IP allocated and assigned after the
// droplet is running, so the address survives a rebuild.
type DigitalOceanProvider struct {
	client *godo.Client
}

// NewDigitalOceanProvider creates a provider authenticated with token.
func NewDigitalOceanProvider(token string) *DigitalOceanProvider {
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &DigitalOceanProvider{
		client: godo.NewClient(oauthClient),
	}
}

func (p *DigitalOceanProvider) Name() inventory.Provider {
	return inventory.ProviderDigitalOcean
}

func (p *DigitalOceanProvider) RequiresNetworkIdentity() bool {
	return true
}

func (p *DigitalOceanProvider) CreateResource(ctx context.Context, spec *Spec) (*Resource, error) {
	sshKeys := make([]godo.DropletCreateSSHKey, 0, len(spec.SSHKeys))
	for _, key := range spec.SSHKeys {
		if id, err := strconv.Atoi(key); err == nil {
			sshKeys = append(sshKeys, godo.DropletCreateSSHKey{ID: id})
			continue
		}
		sshKeys = append(sshKeys, godo.DropletCreateSSHKey{Fingerprint: key})
	}

	request := &godo.DropletCreateRequest{
		Name:     spec.Name,
		Region:   spec.Region,
		Size:     spec.Size,
		Image:    godo.DropletCreateImage{Slug: spec.Image},
		SSHKeys:  sshKeys,
		UserData: spec.UserData,
	}

	droplet, _, err := p.client.Droplets.Create(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create droplet: %w", err)
	}

	return dropletResource(droplet), nil
}

func (p *DigitalOceanProvider) GetResourceStatus(ctx context.Context, id string) (*Resource, error) {
	dropletID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid droplet id %q: %w", id, err)
	}
	droplet, _, err := p.client.Droplets.Get(ctx, dropletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get droplet %s: %w", id, err)
	}
	return dropletResource(droplet), nil
}

func (p *DigitalOceanProvider) DestroyResource(ctx context.Context, id string) error {
	dropletID, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid droplet id %q: %w", id, err)
	}
	if _, err := p.client.Droplets.Delete(ctx, dropletID); err != nil {
		return fmt.Errorf("failed to delete droplet %s: %w", id, err)
	}
	return nil
}

func (p *DigitalOceanProvider) AllocateNetworkIdentity(ctx context.Context, region string) (*NetworkIdentity, error) {
	ip, _, err := p.client.ReservedIPs.Create(ctx, &godo.ReservedIPCreateRequest{Region: region})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve ip in %s: %w", region, err)
	}
	return &NetworkIdentity{ID: ip.IP, Address: ip.IP}, nil
}

func (p *DigitalOceanProvider) AssociateNetworkIdentity(ctx context.Context, identityID, resourceID string) error {
	dropletID, err := strconv.Atoi(resourceID)
	if err != nil {
		return fmt.Errorf("invalid droplet id %q: %w", resourceID, err)
	}
	if _, _, err := p.client.ReservedIPActions.Assign(ctx, identityID, dropletID); err != nil {
		return fmt.Errorf("failed to assign reserved ip %s to droplet %s: %w", identityID, resourceID, err)
	}
	return nil
}

func (p *DigitalOceanProvider) ReleaseNetworkIdentity(ctx context.Context, identityID string) error {
	if _, err := p.client.ReservedIPs.Delete(ctx, identityID); err != nil {
		return fmt.Errorf("failed to release reserved ip %s: %w", identityID, err)
	}
	return nil
}

func dropletResource(droplet *godo.Droplet) *Resource {
	resource := &Resource{
		ID:     strconv.Itoa(droplet.ID),
		Status: StatusPending,
	}
	switch droplet.Status {
	case "active":
		resource.Status = StatusReady
	case "new":
		resource.Status = StatusPending
	case "off", "archive":
		resource.Status = StatusFailed
	}
	if addr, err := droplet.PublicIPv4(); err == nil {
		resource.Address = addr
	}
	return resource
}
