package playbook

// helperLibrary is inlined textually ahead of every playbook body, so the
// remote host needs nothing beyond bash and coreutils.
const helperLibrary = `# --- shipmate helpers ---
say() { echo "[shipmate] $*" >&2; }
has_cmd() { command -v "$1" >/dev/null 2>&1; }
pkg_install() {
  if has_cmd apt-get; then
    DEBIAN_FRONTEND=noninteractive apt-get install -y -q "$@"
  elif has_cmd dnf; then
    dnf install -y -q "$@"
  else
    say "no supported package manager found"
    return 1
  fi
}
out() { printf '%s\n' "$*" >> "$SHIPMATE_OUTPUT"; }
out_begin() { : > "$SHIPMATE_OUTPUT"; }
out_status() { out "status: $1"; }
# --- end helpers ---`

// builtins returns the playbooks shipped with shipmate. Every body is
// idempotent: it checks current state before acting, so repeating a
// dispatch after partial failure is always safe.
func builtins() []*Playbook {
	return []*Playbook{
		{
			Name:        "server.ping",
			Description: "Confirm the server is reachable and responsive",
			Body: `out_begin
out_status success
out "hostname: $(hostname)"
out "uptime_seconds: $(awk '{print int($1)}' /proc/uptime 2>/dev/null || echo 0)"`,
		},
		{
			Name:        "server.info",
			Description: "Gather distribution, listening services and firewall state",
			Body: `distro=unknown
distro_version=unknown
if [ -r /etc/os-release ]; then
  . /etc/os-release
  distro="${ID:-unknown}"
  distro_version="${VERSION_ID:-unknown}"
fi

ufw_installed=false
ufw_active=false
if has_cmd ufw; then
  ufw_installed=true
  if ufw status 2>/dev/null | grep -q '^Status: active'; then
    ufw_active=true
  fi
fi

out_begin
out_status success
out "distro: $distro"
out "distro_version: \"$distro_version\""
out "kernel: $(uname -r)"
out "ufw_installed: $ufw_installed"
out "ufw_active: $ufw_active"
out "ufw_rules:"
if [ "$ufw_active" = true ]; then
  ufw status 2>/dev/null | awk 'NR>4 && NF>1 {print "  - \""$1"\""}' >> "$SHIPMATE_OUTPUT"
fi
out "ports:"
if has_cmd ss; then
  ss -Hltn 2>/dev/null | awk '{split($4,a,":"); print a[length(a)]}' | sort -un | \
    awk '{print "  \""$1"\": listening"}' >> "$SHIPMATE_OUTPUT"
fi`,
		},
		{
			Name:        "firewall.configure",
			Description: "Install, enable and open ports in the ufw firewall",
			Required:    []string{"FIREWALL_ALLOW_PORTS"},
			Body: `if ! has_cmd ufw; then
  say "installing ufw"
  pkg_install ufw
fi

changed=false
IFS=',' read -ra allow_ports <<< "$FIREWALL_ALLOW_PORTS"
for port in "${allow_ports[@]}"; do
  if ! ufw status 2>/dev/null | grep -q "^$port"; then
    say "allowing $port"
    ufw allow "$port"
    changed=true
  fi
done

if ! ufw status 2>/dev/null | grep -q '^Status: active'; then
  say "enabling ufw"
  ufw --force enable
  changed=true
fi

out_begin
out_status success
out "changed: $changed"`,
		},
	}
}
