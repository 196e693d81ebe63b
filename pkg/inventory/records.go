package inventory

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Provider identifies the cloud provider a server was created at.
type Provider string

const (
	// ProviderNone marks a server added by hand, with no external resource.
	ProviderNone Provider = "none"

	// ProviderHetzner marks a server provisioned at Hetzner Cloud.
	ProviderHetzner Provider = "hetzner"

	// ProviderDigitalOcean marks a server provisioned at DigitalOcean.
	ProviderDigitalOcean Provider = "digitalocean"
)

// ServerRecord describes one managed host.
type ServerRecord struct {
	Name           string `yaml:"name"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	CredentialPath string `yaml:"credentialPath"`

	// Provider is "none" for hand-added servers. When it names a cloud
	// provider, ProviderResourceID holds the external resource identifier
	// and deletion must deprovision the resource before removing the record.
	Provider           Provider `yaml:"provider"`
	ProviderResourceID string   `yaml:"providerResourceId,omitempty"`

	// Info is the cached snapshot from the most recent information-gathering
	// playbook dispatch (distribution, listening services, firewall state).
	// It is a passthrough bag: keys are playbook-defined, not typed here.
	Info map[string]any `yaml:"info,omitempty"`
}

// SiteRecord describes an application bound to a server.
type SiteRecord struct {
	Domain         string `yaml:"domain"`
	Server         string `yaml:"server"`
	PHPVersion     string `yaml:"phpVersion,omitempty"`
	Repository     string `yaml:"repository,omitempty"`
	Branch         string `yaml:"branch,omitempty"`
	CurrentRelease string `yaml:"currentRelease,omitempty"`
}

// DuplicateNameError reports a rejected insert for an already-taken key.
type DuplicateNameError struct {
	Kind string // "server" or "site"
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q already exists in inventory", e.Kind, e.Name)
}

// NotFoundError reports a lookup for an absent record.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in inventory", e.Kind, e.Name)
}

// encodeRecord converts a typed record into the generic tree shape the
// store holds.
func encodeRecord(rec any) (map[string]any, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	node := map[string]any{}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return node, nil
}

// decodeRecord converts a generic tree node back into a typed record.
func decodeRecord(node any, rec any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	if err := yaml.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
