// Package ssh provides the stateless remote-execution channel.
//
// Every operation opens a fresh authenticated session, performs exactly one
// remote action and closes the session before returning. There is no
// connection pooling or reuse across calls: a crashed caller never leaks a
// connection, and two consecutive operations never observe each other's
// session state.
package ssh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Channel defines the interface for single-operation remote execution.
type Channel interface {
	// Verify opens and closes an authenticated session without running
	// anything, confirming the host is reachable and the credential accepted.
	Verify(ctx context.Context) error

	// Run executes a command on the remote host. A non-zero exit code is
	// returned inside ExecResult, not as an error; only transport or
	// authentication failures return an error.
	Run(ctx context.Context, command string) (*ExecResult, error)

	// RunScript transmits a script body and executes it under a shell.
	RunScript(ctx context.Context, script string) (*ExecResult, error)

	// Upload copies a local file to the remote host via SFTP.
	Upload(ctx context.Context, localPath, remotePath string, mode uint32) error

	// Download copies a remote file to the local filesystem via SFTP.
	Download(ctx context.Context, remotePath, localPath string) error
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command
	Stdout string

	// Stderr is the standard error output from the command
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// client is the Channel implementation over golang.org/x/crypto/ssh.
type client struct {
	config *Config
}

// NewChannel creates a Channel for the host described by config.
func NewChannel(config *Config) (Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &client{config: config}, nil
}

// withClient dials the host, runs fn against the live connection and always
// closes the connection afterwards, on every exit path.
func (c *client) withClient(ctx context.Context, op string, fn func(*ssh.Client) error) error {
	clientConfig, err := c.config.buildClientConfig()
	if err != nil {
		return &TransportError{Op: op, Host: c.config.Address(), Kind: KindAuth, Err: err}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Str("op", op).Msg("opening SSH session")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	var conn *ssh.Client
	select {
	case <-ctx.Done():
		return &TransportError{Op: op, Host: address, Kind: KindConnect, Err: ctx.Err()}
	case err := <-errChan:
		return &TransportError{Op: op, Host: address, Kind: dialErrorKind(err), Err: err}
	case conn = <-connChan:
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("address", address).Msg("closing SSH connection")
		}
	}()

	return fn(conn)
}

// dialErrorKind separates credential rejections from plain network failures.
func dialErrorKind(err error) ErrorKind {
	if err != nil && strings.Contains(err.Error(), "unable to authenticate") {
		return KindAuth
	}
	return KindConnect
}

// Verify opens an authenticated session and runs a no-op command.
func (c *client) Verify(ctx context.Context) error {
	return c.withClient(ctx, "verify", func(conn *ssh.Client) error {
		session, err := conn.NewSession()
		if err != nil {
			return &TransportError{Op: "verify", Host: c.config.Address(), Kind: KindConnect, Err: err}
		}
		defer session.Close()

		if err := session.Run("true"); err != nil {
			return &TransportError{Op: "verify", Host: c.config.Address(), Kind: KindConnect, Err: err}
		}
		return nil
	})
}
