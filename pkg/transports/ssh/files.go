package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Upload copies a local file to the remote host via SFTP.
func (c *client) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	return c.withClient(ctx, "upload", func(conn *ssh.Client) error {
		return c.uploadFile(ctx, conn, localPath, remotePath, mode)
	})
}

// Download copies a remote file to the local filesystem via SFTP.
func (c *client) Download(ctx context.Context, remotePath, localPath string) error {
	return c.withClient(ctx, "download", func(conn *ssh.Client) error {
		return c.downloadFile(ctx, conn, remotePath, localPath)
	})
}

func (c *client) sftpClient(conn *ssh.Client) (*sftp.Client, error) {
	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return nil, &TransportError{
			Op:   "sftp-init",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to create SFTP client: %w", err),
		}
	}
	return sftpClient, nil
}

func (c *client) uploadFile(ctx context.Context, conn *ssh.Client, localPath, remotePath string, mode uint32) error {
	startTime := time.Now()

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("uploading file")

	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{
			Op:   "upload",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	sftpClient, err := c.sftpClient(conn)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{
				Op:   "upload",
				Host: c.config.Address(),
				Kind: KindTransfer,
				Err:  fmt.Errorf("failed to create remote directory: %w", err),
			}
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:   "upload",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to create remote file: %w", err),
		}
	}
	defer remoteFile.Close()

	bytesWritten, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{
			Op:   "upload",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to copy file: %w", err),
		}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file permissions")
		}
	}

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", bytesWritten).
		Dur("duration", time.Since(startTime)).
		Msg("file uploaded")

	return nil
}

func (c *client) downloadFile(ctx context.Context, conn *ssh.Client, remotePath, localPath string) error {
	startTime := time.Now()

	log.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Msg("downloading file")

	sftpClient, err := c.sftpClient(conn)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return &TransportError{
			Op:   "download",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to open remote file: %w", err),
		}
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return &TransportError{
			Op:   "download",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to create local directory: %w", err),
		}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return &TransportError{
			Op:   "download",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to create local file: %w", err),
		}
	}
	defer localFile.Close()

	bytesWritten, err := copyWithContext(ctx, localFile, remoteFile)
	if err != nil {
		return &TransportError{
			Op:   "download",
			Host: c.config.Address(),
			Kind: KindTransfer,
			Err:  fmt.Errorf("failed to copy file: %w", err),
		}
	}

	log.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", bytesWritten).
		Dur("duration", time.Since(startTime)).
		Msg("file downloaded")

	return nil
}

// copyWithContext copies data from src to dst while respecting context
// cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
