package playbook

import (
	"strings"
	"testing"
)

func TestParseResultPassthroughKeys(t *testing.T) {
	raw := []byte(`status: success
ufw_installed: true
ufw_active: true
ufw_rules:
  - "22/tcp"
  - "80/tcp"
ports:
  "22": sshd
  "80": webserver
`)

	result, err := parseResult("server.info", raw)
	if err != nil {
		t.Fatalf("parseResult() failed: %v", err)
	}

	if !result.OK() {
		t.Errorf("status = %q, want success", result.Status())
	}
	if active, ok := result.Bool("ufw_active"); !ok || !active {
		t.Errorf("ufw_active = %v, %v", active, ok)
	}
	rules, ok := result.Strings("ufw_rules")
	if !ok || len(rules) != 2 || rules[0] != "22/tcp" {
		t.Errorf("ufw_rules = %v, %v", rules, ok)
	}
	// Playbook-specific keys pass through verbatim.
	if _, ok := result["ports"]; !ok {
		t.Error("ports key not passed through")
	}
}

func TestComposeLayout(t *testing.T) {
	pb := &Playbook{
		Name: "test.playbook",
		Body: "echo body-marker",
	}
	params := map[string]string{
		"ZETA":  "last",
		"ALPHA": "it's quoted",
	}

	script := Compose(pb, params, "/tmp/out.yml")

	if !strings.HasPrefix(script, "#!/usr/bin/env bash\nset -euo pipefail\n") {
		t.Errorf("script missing preamble:\n%s", script)
	}

	// Single quotes in values must be escaped for the shell.
	if !strings.Contains(script, `export ALPHA='it'\''s quoted'`) {
		t.Errorf("script missing escaped export:\n%s", script)
	}

	// Exports are sorted, and everything precedes the helpers and body.
	alphaIdx := strings.Index(script, "export ALPHA=")
	zetaIdx := strings.Index(script, "export ZETA=")
	helpersIdx := strings.Index(script, "has_cmd()")
	bodyIdx := strings.Index(script, "echo body-marker")
	outputIdx := strings.Index(script, "export SHIPMATE_OUTPUT='/tmp/out.yml'")

	if outputIdx < 0 || alphaIdx < 0 || zetaIdx < 0 || helpersIdx < 0 || bodyIdx < 0 {
		t.Fatalf("script missing sections:\n%s", script)
	}
	if !(outputIdx < alphaIdx && alphaIdx < zetaIdx && zetaIdx < helpersIdx && helpersIdx < bodyIdx) {
		t.Errorf("script sections out of order:\n%s", script)
	}
}

func TestCatalogBuiltins(t *testing.T) {
	catalog := NewCatalog()

	for _, name := range []string{"server.ping", "server.info", "firewall.configure"} {
		pb, err := catalog.Get(name)
		if err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
			continue
		}
		if pb.Body == "" {
			t.Errorf("playbook %q has empty body", name)
		}
	}

	if _, err := catalog.Get("nope"); err == nil {
		t.Error("expected error for unknown playbook")
	}

	names := catalog.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names() not sorted: %v", names)
		}
	}
}
