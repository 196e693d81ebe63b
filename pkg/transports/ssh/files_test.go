package ssh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	channel, err := NewChannel(testChannelConfig(t, server.addr))
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("playbook output goes here\nstatus: success\n")
	localPath := filepath.Join(dir, "source.yml")
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	// The test server serves SFTP against the local filesystem, so the
	// "remote" path is just another temp path.
	remotePath := filepath.Join(dir, "remote", "uploaded.yml")
	if err := channel.Upload(ctx, localPath, remotePath, 0o600); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	uploaded, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatalf("failed to read uploaded file: %v", err)
	}
	if string(uploaded) != string(content) {
		t.Errorf("uploaded content = %q, want %q", uploaded, content)
	}

	downloadPath := filepath.Join(dir, "downloaded", "result.yml")
	if err := channel.Download(ctx, remotePath, downloadPath); err != nil {
		t.Fatalf("Download() failed: %v", err)
	}

	downloaded, err := os.ReadFile(downloadPath)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(downloaded) != string(content) {
		t.Errorf("downloaded content = %q, want %q", downloaded, content)
	}
}

func TestDownloadMissingRemoteFile(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	channel, err := NewChannel(testChannelConfig(t, server.addr))
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	dir := t.TempDir()
	err = channel.Download(context.Background(), filepath.Join(dir, "nope.yml"), filepath.Join(dir, "out.yml"))
	if err == nil {
		t.Fatal("expected transfer failure, got nil")
	}
	if !IsTransferError(err) {
		t.Errorf("expected transfer error, got %v", err)
	}
}

func TestUploadMissingLocalFile(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	channel, err := NewChannel(testChannelConfig(t, server.addr))
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	dir := t.TempDir()
	err = channel.Upload(context.Background(), filepath.Join(dir, "absent.yml"), filepath.Join(dir, "out.yml"), 0o644)
	if err == nil {
		t.Fatal("expected transfer failure, got nil")
	}
	if !IsTransferError(err) {
		t.Errorf("expected transfer error, got %v", err)
	}
}
