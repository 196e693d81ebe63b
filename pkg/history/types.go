package history

import "time"

// DispatchRecord is one playbook dispatch against one server.
type DispatchRecord struct {
	ID       string
	Server   string
	Playbook string
	Status   string
	Duration time.Duration
	Message  string
	RanAt    time.Time
}

// ProvisionRecord is one provisioning run against one provider.
type ProvisionRecord struct {
	ID         string
	Provider   string
	Name       string
	Status     string
	ResourceID string
	Duration   time.Duration
	Message    string
	RanAt      time.Time
}
