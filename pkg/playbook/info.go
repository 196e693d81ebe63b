package playbook

import (
	"context"

	"github.com/loadinglucian/shipmate/pkg/inventory"
)

// InfoPlaybook is the information-gathering playbook whose result is
// cached on the server record.
const InfoPlaybook = "server.info"

// RefreshInfo dispatches the information-gathering playbook and caches its
// result on the server record, both in memory and in the inventory.
//
// Operations that need passive status about a server (firewall state,
// listening ports) read server.Info instead of dispatching their own
// detection playbook: one round trip, and every consumer within a command
// invocation sees identical results.
func (d *Dispatcher) RefreshInfo(ctx context.Context, registry *inventory.Registry, server *inventory.ServerRecord) (Result, error) {
	result, err := d.Dispatch(ctx, server, InfoPlaybook, nil)
	if err != nil {
		return nil, err
	}

	info := map[string]any(result)
	if err := registry.UpdateServerInfo(server.Name, info); err != nil {
		return nil, err
	}
	server.Info = info

	return result, nil
}
