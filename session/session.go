package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrAuth marks dial failures where the transport came up but no credential
// method satisfied the server. Callers distinguish it from plain connection
// failures with errors.Is.
var ErrAuth = errors.New("ssh authentication failed")

// Session is one authenticated SSH connection. Each launch attempt owns a
// fresh Session; it is never shared or reused across launches.
type Session struct {
	client *ssh.Client
	cfg    Config

	mu     sync.Mutex
	closed bool
}

// Dial opens the TCP connection, performs the handshake and runs the
// authentication chain, logging each credential source it offers to logf.
// A nil error means the server confirmed full authentication.
func Dial(ctx context.Context, cfg Config, log io.Writer) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth, err := authMethods(cfg, log)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	conn, err := (&net.Dialer{Timeout: cfg.Timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ssh at %s: %w", addr, err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: cfg.HostKeyCheck,
		Timeout:         cfg.Timeout,
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()

		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w for user %q: %v", ErrAuth, cfg.User, err)
		}

		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	return &Session{client: ssh.NewClient(c, chans, reqs), cfg: cfg}, nil
}

// Run executes one remote command to completion, draining stdout and stderr
// concurrently into sink. The remote stdin is closed immediately; no
// interactive input is ever sent. After both streams drain, Run waits at
// most cfg.ExitStatusWait for the exit status and reports -1 if it never
// arrives. The command channel is always closed before returning.
func (s *Session) Run(ctx context.Context, command string, sink io.Writer) (int, error) {
	sess, err := s.newSession()
	if err != nil {
		return -1, err
	}
	defer func() { _ = sess.Close() }()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return -1, err
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return -1, err
	}

	stderr, err := sess.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := sess.Start(command); err != nil {
		return -1, fmt.Errorf("failed to start %q: %w", command, err)
	}

	_ = stdin.Close()

	// The two pumps never touch the same stream; only the shared sink
	// needs serializing.
	out := &lockedWriter{w: sink}

	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)

		go func(r io.Reader) {
			defer wg.Done()

			_, _ = io.Copy(out, r)
		}(r)
	}

	wg.Wait()

	// Delivery of the exit status often lags the stream EOFs.
	waitCh := make(chan error, 1)
	go func() { waitCh <- sess.Wait() }()

	select {
	case err := <-waitCh:
		return exitCode(err)
	case <-time.After(s.cfg.ExitStatusWait):
		return -1, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	exitErr := &ssh.ExitError{}
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}

	missing := &ssh.ExitMissingError{}
	if errors.As(err, &missing) {
		return -1, nil
	}

	return -1, err
}

// Process is a started remote command whose streams outlive the call that
// created it.
type Process struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *Process) Stdin() io.WriteCloser { return p.stdin }
func (p *Process) Stdout() io.Reader     { return p.stdout }
func (p *Process) Stderr() io.Reader     { return p.stderr }

// Wait blocks until the remote command exits.
func (p *Process) Wait() error { return p.sess.Wait() }

// Close tears down the command channel. Safe to call more than once.
func (p *Process) Close() error {
	err := p.sess.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// Start launches a remote command and returns its live stream endpoints.
func (s *Session) Start(ctx context.Context, command string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()

		return nil, err
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()

		return nil, err
	}

	stderr, err := sess.StderrPipe()
	if err != nil {
		_ = sess.Close()

		return nil, err
	}

	if err := sess.Start(command); err != nil {
		_ = sess.Close()

		return nil, fmt.Errorf("failed to start %q: %w", command, err)
	}

	return &Process{sess: sess, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

// SFTP opens an SFTP client over the session. An error here means the
// server has no usable SFTP subsystem, which callers treat as a signal to
// fall back rather than as a fatal condition.
func (s *Session) SFTP() (*sftp.Client, error) {
	s.mu.Lock()
	client := s.client
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, errors.New("session closed")
	}

	return sftp.NewClient(client)
}

// Close shuts the underlying connection down. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.client != nil {
		return s.client.Close()
	}

	return nil
}

func (s *Session) newSession() (*ssh.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("session closed")
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open command channel: %w", err)
	}

	return sess, nil
}

// Quote wraps s in single quotes for the remote shell, escaping embedded
// single quotes as '\''.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	u, err := user.Current()
	if err != nil {
		return "", err
	}

	return filepath.Join(u.HomeDir, path[2:]), nil
}
