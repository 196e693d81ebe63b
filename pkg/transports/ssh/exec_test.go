package ssh

import (
	"context"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	channel, err := NewChannel(testChannelConfig(t, server.addr))
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	ctx := context.Background()

	tests := []struct {
		name           string
		command        string
		expectedStdout string
		expectedStderr string
		expectedExit   int
	}{
		{
			name:           "simple echo",
			command:        "echo test",
			expectedStdout: "test\n",
		},
		{
			name:           "stderr output",
			command:        "echo error >&2",
			expectedStderr: "error\n",
		},
		{
			name:         "non-zero exit is data not error",
			command:      "exit 1",
			expectedExit: 1,
		},
		{
			name:         "large exit code",
			command:      "exit 42",
			expectedExit: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := channel.Run(ctx, tt.command)
			if err != nil {
				t.Fatalf("Run(%q) failed: %v", tt.command, err)
			}
			if result.Stdout != tt.expectedStdout {
				t.Errorf("stdout = %q, want %q", result.Stdout, tt.expectedStdout)
			}
			if result.Stderr != tt.expectedStderr {
				t.Errorf("stderr = %q, want %q", result.Stderr, tt.expectedStderr)
			}
			if result.ExitCode != tt.expectedExit {
				t.Errorf("exit code = %d, want %d", result.ExitCode, tt.expectedExit)
			}
		})
	}
}

func TestRunScriptWrapsInHeredoc(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	channel, err := NewChannel(testChannelConfig(t, server.addr))
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	script := "echo hello\necho world"
	result, err := channel.RunScript(context.Background(), script)
	if err != nil {
		t.Fatalf("RunScript() failed: %v", err)
	}

	// The test server echoes the exec payload; the script body must arrive
	// intact inside a quoted heredoc.
	if !strings.Contains(result.Stdout, script) {
		t.Errorf("transmitted payload missing script body: %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, "bash -s <<'SHIPMATE_EOF_") {
		t.Errorf("transmitted payload missing heredoc preamble: %q", result.Stdout)
	}
}

func TestScriptDelimiterAvoidsCollision(t *testing.T) {
	// A body quoting a delimiter-shaped string must never be chosen as
	// its own delimiter.
	body := "cat <<'SHIPMATE_EOF_deadbeef'\npayload\nSHIPMATE_EOF_deadbeef"

	for i := 0; i < 100; i++ {
		delim := scriptDelimiter(body)
		if strings.Contains(body, delim) {
			t.Fatalf("delimiter %q collides with script body", delim)
		}
		if !strings.HasPrefix(delim, "SHIPMATE_EOF_") {
			t.Fatalf("unexpected delimiter shape: %q", delim)
		}
	}
}
