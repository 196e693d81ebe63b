package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Run executes a command on the remote host in a fresh session.
func (c *client) Run(ctx context.Context, command string) (*ExecResult, error) {
	var result *ExecResult

	err := c.withClient(ctx, "exec", func(conn *ssh.Client) error {
		var err error
		result, err = c.runOnConn(ctx, conn, command)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunScript executes a script body under a shell on the remote host.
//
// The body is transmitted inside a quoted heredoc whose delimiter carries a
// random suffix, so a script that itself contains heredoc text cannot
// terminate the enclosing document early.
func (c *client) RunScript(ctx context.Context, script string) (*ExecResult, error) {
	delim := scriptDelimiter(script)
	wrapped := fmt.Sprintf("bash -s <<'%s'\n%s\n%s", delim, script, delim)
	return c.Run(ctx, wrapped)
}

// scriptDelimiter returns a heredoc delimiter not contained in body.
func scriptDelimiter(body string) string {
	for {
		delim := "SHIPMATE_EOF_" + uuid.NewString()[:8]
		if !bytes.Contains([]byte(body), []byte(delim)) {
			return delim
		}
	}
}

// runOnConn executes one command on an already-open connection.
func (c *client) runOnConn(ctx context.Context, conn *ssh.Client, command string) (*ExecResult, error) {
	startTime := time.Now()

	session, err := conn.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:   "exec",
			Host: c.config.Address(),
			Kind: KindConnect,
			Err:  fmt.Errorf("failed to create session: %w", err),
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	execCtx := ctx
	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(command)
	}()

	var execErr error
	select {
	case <-execCtx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = execCtx.Err()
	case execErr = <-doneChan:
	}

	result := &ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Int("stdout_len", len(result.Stdout)).
		Int("stderr_len", len(result.Stderr)).
		Dur("duration", result.Duration).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			// The command ran; its exit code is data, not a transport failure.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, &TransportError{
			Op:   "exec",
			Host: c.config.Address(),
			Kind: KindExec,
			Err:  execErr,
		}
	}

	return result, nil
}
