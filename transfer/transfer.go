// Package transfer copies the agent payload onto the remote host.
//
// The primary path is SFTP. When the server has no SFTP subsystem at all,
// the payload is pushed through an SCP sink instead; once SFTP has opened
// successfully, any later failure is fatal rather than a reason to fall
// back, because the protocol being available but misbehaving points at a
// real problem.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
)

// Conn is the slice of the transport session the transfer needs.
type Conn interface {
	// SFTP opens an SFTP client; an error means the subsystem is
	// unavailable and selects the fallback path.
	SFTP() (*sftp.Client, error)

	// Run executes a one-shot remote command.
	Run(ctx context.Context, command string, sink io.Writer) (int, error)

	// PushSCP copies one blob via the SCP sink protocol.
	PushSCP(ctx context.Context, dir, name string, perm os.FileMode, data []byte) error
}

// Outcome reports what a completed transfer did.
type Outcome struct {
	Bytes    int64
	Fallback bool // true when the SCP path was used
}

// Put copies data to dir/name on the remote host, creating dir when absent
// and replacing any stale payload. Progress goes to log.
func Put(ctx context.Context, conn Conn, data []byte, dir, name string, log io.Writer) (Outcome, error) {
	fmt.Fprintln(log, "Starting sftp client")

	client, err := conn.SFTP()
	if err != nil {
		// No SFTP subsystem on this host; the blob goes up via scp.
		fmt.Fprintf(log, "SFTP unavailable (%v), falling back to scp\n", err)

		if err := putSCP(ctx, conn, data, dir, name, log); err != nil {
			return Outcome{Fallback: true}, err
		}

		return Outcome{Bytes: int64(len(data)), Fallback: true}, nil
	}

	defer func() { _ = client.Close() }()

	n, err := putSFTP(ctx, sftpDir{client}, data, dir, name, log)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Bytes: n}, nil
}

// remoteFS is the slice of *sftp.Client putSFTP uses, split out so tests
// can run against a fake.
type remoteFS interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string) error
	Chmod(path string, mode os.FileMode) error
	Remove(path string) error
	Create(path string) (io.WriteCloser, error)
}

type sftpDir struct {
	c *sftp.Client
}

func (d sftpDir) Stat(path string) (os.FileInfo, error)     { return d.c.Stat(path) }
func (d sftpDir) MkdirAll(path string) error                { return d.c.MkdirAll(path) }
func (d sftpDir) Chmod(path string, mode os.FileMode) error { return d.c.Chmod(path, mode) }
func (d sftpDir) Remove(path string) error                  { return d.c.Remove(path) }
func (d sftpDir) Create(path string) (io.WriteCloser, error) {
	return d.c.Create(path)
}

func putSFTP(ctx context.Context, fs remoteFS, data []byte, dir, name string, log io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	switch fi, err := fs.Stat(dir); {
	case err != nil:
		fmt.Fprintf(log, "Remote directory %s does not exist, creating it\n", dir)

		if err := fs.MkdirAll(dir); err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", dir, err)
		}

		// Owner-only: the payload directory holds nothing anyone else
		// needs to read.
		if err := fs.Chmod(dir, 0o700); err != nil {
			return 0, fmt.Errorf("failed to chmod %s: %w", dir, err)
		}
	case !fi.IsDir():
		return 0, fmt.Errorf("remote path %s is a regular file, not a directory", dir)
	}

	target := dir + "/" + name

	// Remove a stale payload first in case the new one is shorter.
	if err := fs.Remove(target); err != nil {
		fmt.Fprintf(log, "No stale %s to remove\n", target)
	}

	fmt.Fprintf(log, "Copying %s\n", name)

	f, err := fs.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}

	n, err := io.Copy(f, bytes.NewReader(data))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", target, err)
	}

	fmt.Fprintf(log, "Copied %d bytes\n", n)

	return n, nil
}

// putSCP is the fallback for hosts without an SFTP subsystem. It leans on
// one-shot commands for the directory work the protocol can't express.
func putSCP(ctx context.Context, conn Conn, data []byte, dir, name string, log io.Writer) error {
	if code, err := conn.Run(ctx, "test -d "+dir, log); err != nil {
		return err
	} else if code != 0 {
		fmt.Fprintf(log, "Remote directory %s does not exist, creating it\n", dir)

		if code, err := conn.Run(ctx, "mkdir -p "+dir, log); err != nil {
			return err
		} else if code != 0 {
			// Creation may have raced or be forbidden; the scp below
			// is the real arbiter.
			fmt.Fprintf(log, "Failed to create %s\n", dir)
		}
	}

	// Best-effort removal of a stale payload, mirroring the SFTP path.
	_, _ = conn.Run(ctx, "rm "+dir+"/"+name, io.Discard)

	fmt.Fprintf(log, "Copying %s\n", name)

	if err := conn.PushSCP(ctx, dir, name, 0o644, data); err != nil {
		return err
	}

	fmt.Fprintf(log, "Copied %d bytes\n", len(data))

	return nil
}

// Remove deletes the payload from the remote host, preferring SFTP and
// falling back to a plain rm. Used during disconnect; absence is fine.
func Remove(ctx context.Context, conn Conn, dir, name string) error {
	target := dir + "/" + name

	client, err := conn.SFTP()
	if err != nil {
		if _, rerr := conn.Run(ctx, "rm "+target, io.Discard); rerr != nil {
			return errors.Join(err, rerr)
		}

		return nil
	}

	defer func() { _ = client.Close() }()

	return client.Remove(target)
}
