package playbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loadinglucian/shipmate/pkg/inventory"
	"github.com/loadinglucian/shipmate/pkg/telemetry"
	"github.com/loadinglucian/shipmate/pkg/transports/ssh"
)

// outputPathVar is the environment variable carrying the path the script
// must write its result document to.
const outputPathVar = "SHIPMATE_OUTPUT"

var paramKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ChannelFactory opens a remote execution channel for a server record.
type ChannelFactory func(server *inventory.ServerRecord) (ssh.Channel, error)

// DefaultChannelFactory builds an SSH channel from the record's
// connection fields.
func DefaultChannelFactory(server *inventory.ServerRecord) (ssh.Channel, error) {
	config := ssh.DefaultConfig(server.Host, server.Username, server.CredentialPath)
	if server.Port != 0 {
		config.Port = server.Port
	}
	return ssh.NewChannel(config)
}

// Recorder persists dispatch outcomes. Implementations must tolerate
// being called on both success and failure paths.
type Recorder interface {
	RecordDispatch(ctx context.Context, server, playbook, status string, duration time.Duration, message string) error
}

// Dispatcher runs playbooks against managed servers.
type Dispatcher struct {
	catalog    *Catalog
	channelFor ChannelFactory
	metrics    *telemetry.Metrics
	recorder   Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChannelFactory overrides how channels are opened, used by tests and
// by callers with non-standard connection settings.
func WithChannelFactory(factory ChannelFactory) Option {
	return func(d *Dispatcher) { d.channelFor = factory }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRecorder attaches a dispatch history recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher over catalog.
func NewDispatcher(catalog *Catalog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:    catalog,
		channelFor: DefaultChannelFactory,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one named playbook against one server and returns its
// parsed result document.
//
// Playbook bodies are idempotent (check-before-act), so a dispatch that
// failed partway is safe for the operator to repeat; nothing here retries
// automatically.
func (d *Dispatcher) Dispatch(ctx context.Context, server *inventory.ServerRecord, name string, params map[string]string) (Result, error) {
	startTime := time.Now()

	result, err := d.dispatch(ctx, server, name, params)

	status := StatusSuccess
	message := ""
	if err != nil {
		status = "error"
		message = err.Error()
	}
	d.metrics.ObserveDispatch(name, status)
	if d.recorder != nil {
		if rerr := d.recorder.RecordDispatch(ctx, server.Name, name, status, time.Since(startTime), message); rerr != nil {
			log.Warn().Err(rerr).Str("playbook", name).Msg("failed to record dispatch history")
		}
	}

	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, server *inventory.ServerRecord, name string, params map[string]string) (Result, error) {
	pb, err := d.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	// Validate the parameter contract before touching the network.
	if err := validateParams(pb, params); err != nil {
		return nil, err
	}

	outputPath := fmt.Sprintf("/tmp/shipmate-out-%s.yml", uuid.NewString())
	script := Compose(pb, params, outputPath)

	channel, err := d.channelFor(server)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel to %s: %w", server.Name, err)
	}

	log.Debug().
		Str("playbook", name).
		Str("server", server.Name).
		Msg("dispatching playbook")

	res, err := channel.RunScript(ctx, script)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &ExecutionError{
			Playbook: name,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}

	raw, err := d.fetchOutput(ctx, channel, outputPath)
	if err != nil {
		return nil, err
	}

	result, err := parseResult(name, raw)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, &ExecutionError{
			Playbook: name,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}

	log.Info().
		Str("playbook", name).
		Str("server", server.Name).
		Dur("duration", res.Duration).
		Msg("playbook dispatched")

	return result, nil
}

// fetchOutput downloads the result document and removes it remotely.
// Removal is best-effort: a leftover temp file is not worth failing a
// successful dispatch over.
func (d *Dispatcher) fetchOutput(ctx context.Context, channel ssh.Channel, outputPath string) ([]byte, error) {
	localDir, err := os.MkdirTemp("", "shipmate-dispatch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(localDir)

	localPath := filepath.Join(localDir, "result.yml")
	if err := channel.Download(ctx, outputPath, localPath); err != nil {
		return nil, err
	}

	if _, err := channel.Run(ctx, "rm -f "+outputPath); err != nil {
		log.Warn().Err(err).Str("path", outputPath).Msg("failed to remove remote result document")
	}

	return os.ReadFile(localPath)
}

func validateParams(pb *Playbook, params map[string]string) error {
	for key := range params {
		if !paramKeyPattern.MatchString(key) {
			return fmt.Errorf("playbook %q: invalid parameter key %q", pb.Name, key)
		}
	}

	var missing []string
	for _, key := range pb.Required {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{Playbook: pb.Name, Missing: missing}
	}
	return nil
}

// Compose builds the full script transmitted to the remote host: exported
// parameters first, then the shared helper library, then the task body.
// Parameters ride in environment variables rather than positional
// arguments, so no quoting ambiguity can reorder or split them.
func Compose(pb *Playbook, params map[string]string, outputPath string) string {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n\n")

	b.WriteString("export " + outputPathVar + "=" + shellQuote(outputPath) + "\n")

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString("export " + key + "=" + shellQuote(params[key]) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helperLibrary)
	b.WriteString("\n")
	b.WriteString(pb.Body)
	b.WriteString("\n")

	return b.String()
}

// shellQuote single-quotes v for safe inclusion in a shell script.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
