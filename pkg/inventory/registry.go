package inventory

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is the typed orchestration layer over the generic store. The
// store itself enforces no uniqueness; the registry checks for an existing
// record before every insert.
type Registry struct {
	store *Store
}

// NewRegistry creates a registry over an opened store.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store}
}

// AddServer inserts a new server record. The name must not be taken and
// must not contain a dot, which is the path separator.
func (r *Registry) AddServer(rec *ServerRecord) error {
	if rec.Name == "" || strings.Contains(rec.Name, ".") {
		return fmt.Errorf("invalid server name %q", rec.Name)
	}
	if r.store.Get("servers."+rec.Name, nil) != nil {
		return &DuplicateNameError{Kind: "server", Name: rec.Name}
	}
	node, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return r.store.Set("servers."+rec.Name, node)
}

// GetServer returns the server record for name.
func (r *Registry) GetServer(name string) (*ServerRecord, error) {
	node := r.store.Get("servers."+name, nil)
	if node == nil {
		return nil, &NotFoundError{Kind: "server", Name: name}
	}
	rec := &ServerRecord{}
	if err := decodeRecord(node, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListServers returns all server records sorted by name.
func (r *Registry) ListServers() ([]*ServerRecord, error) {
	servers, _ := r.store.Get("servers", map[string]any{}).(map[string]any)

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]*ServerRecord, 0, len(names))
	for _, name := range names {
		rec := &ServerRecord{}
		if err := decodeRecord(servers[name], rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// RemoveServer deletes the server record for name. Removing an absent
// record is an error: the caller is expected to have fetched it first.
func (r *Registry) RemoveServer(name string) error {
	if r.store.Get("servers."+name, nil) == nil {
		return &NotFoundError{Kind: "server", Name: name}
	}
	return r.store.Delete("servers." + name)
}

// UpdateServerInfo replaces the cached info snapshot on a server record.
// Consumers needing passive status (firewall state, listening ports) read
// this cache instead of re-dispatching a detection playbook.
func (r *Registry) UpdateServerInfo(name string, info map[string]any) error {
	if r.store.Get("servers."+name, nil) == nil {
		return &NotFoundError{Kind: "server", Name: name}
	}
	return r.store.Set("servers."+name+".info", info)
}

// AddSite inserts a new site record. The domain must not be taken.
func (r *Registry) AddSite(rec *SiteRecord) error {
	if r.store.GetAt([]string{"sites", rec.Domain}, nil) != nil {
		return &DuplicateNameError{Kind: "site", Name: rec.Domain}
	}
	node, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return r.store.SetAt([]string{"sites", rec.Domain}, node)
}

// GetSite returns the site record for domain.
func (r *Registry) GetSite(domain string) (*SiteRecord, error) {
	node := r.store.GetAt([]string{"sites", domain}, nil)
	if node == nil {
		return nil, &NotFoundError{Kind: "site", Name: domain}
	}
	rec := &SiteRecord{}
	if err := decodeRecord(node, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSites returns all site records sorted by domain.
func (r *Registry) ListSites() ([]*SiteRecord, error) {
	sites, _ := r.store.Get("sites", map[string]any{}).(map[string]any)

	domains := make([]string, 0, len(sites))
	for domain := range sites {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	records := make([]*SiteRecord, 0, len(domains))
	for _, domain := range domains {
		rec := &SiteRecord{}
		if err := decodeRecord(sites[domain], rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// RemoveSite deletes the site record for domain.
func (r *Registry) RemoveSite(domain string) error {
	if r.store.GetAt([]string{"sites", domain}, nil) == nil {
		return &NotFoundError{Kind: "site", Name: domain}
	}
	return r.store.DeleteAt([]string{"sites", domain})
}
