// Package playbook provides named idempotent remote scripts and the
// dispatcher that executes them against a managed server.
//
// A playbook declares the parameter keys it requires; the dispatcher
// injects parameters as shell-exported variables prefixed to the script
// body and inlines the shared helper library, so the remote host needs no
// dependencies beyond a shell. Results come back as a YAML document the
// script writes to a dispatcher-supplied output path.
package playbook

import (
	"fmt"
	"sort"
)

// Playbook is a named idempotent script with a declared parameter contract.
type Playbook struct {
	// Name identifies the playbook, e.g. "server.info".
	Name string

	// Description is a one-line operator-facing summary.
	Description string

	// Required lists the parameter keys that must be present in every
	// dispatch. Validation happens before any network call.
	Required []string

	// Body is the task-specific script. It runs after the exported
	// parameters and the helper library, and must write its result document
	// to the path in $SHIPMATE_OUTPUT.
	Body string
}

// Catalog holds the playbooks known to the dispatcher.
type Catalog struct {
	playbooks map[string]*Playbook
}

// NewCatalog creates a catalog preloaded with the built-in playbooks.
func NewCatalog() *Catalog {
	c := &Catalog{playbooks: map[string]*Playbook{}}
	for _, pb := range builtins() {
		c.playbooks[pb.Name] = pb
	}
	return c
}

// Register adds a playbook to the catalog, replacing any previous
// playbook of the same name.
func (c *Catalog) Register(pb *Playbook) {
	c.playbooks[pb.Name] = pb
}

// Get returns the playbook registered under name.
func (c *Catalog) Get(name string) (*Playbook, error) {
	pb, ok := c.playbooks[name]
	if !ok {
		return nil, fmt.Errorf("unknown playbook %q", name)
	}
	return pb, nil
}

// Names returns all registered playbook names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.playbooks))
	for name := range c.playbooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
