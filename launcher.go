package sshlaunch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/halverson/sshlaunch/jdk"
	"github.com/halverson/sshlaunch/session"
	"github.com/halverson/sshlaunch/transfer"
)

// remoteProcess is the launched agent as the orchestrator sees it.
type remoteProcess interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Close() error
}

// transport is the slice of session.Session the orchestrator drives. It is
// an interface so tests can script the remote side.
type transport interface {
	transfer.Conn

	Start(ctx context.Context, command string) (remoteProcess, error)
	Close() error
}

// sshTransport adapts *session.Session to the transport interface.
type sshTransport struct {
	*session.Session
}

func (t sshTransport) Start(ctx context.Context, command string) (remoteProcess, error) {
	p, err := t.Session.Start(ctx, command)
	if err != nil {
		return nil, err
	}

	return p, nil
}

type launchState int

const (
	stateUnconnected launchState = iota
	stateRunning
	stateClosed
)

// Launcher bootstraps and supervises the agent on one target. Launch and
// Disconnect are mutually exclusive with each other and with themselves; a
// Launcher drives at most one live session at a time, and every attempt
// opens a fresh one.
type Launcher struct {
	Target   Target
	Node     Node
	Payload  PayloadSource
	Bind     Binder
	Listener Listener

	// Providers overrides the runtime candidate registry. Nil means
	// jdk.DefaultProviders.
	Providers []jdk.Provider

	mu      sync.Mutex
	state   launchState
	sess    transport
	channel Channel

	// dial overrides transport construction in tests.
	dial func(ctx context.Context) (transport, error)
}

// Launch runs the whole bootstrap sequence synchronously: connect,
// authenticate, verify the channel is clean, report the remote environment,
// resolve a runtime, transfer the payload, start the agent and bind its
// stdio to the caller's channel. Every failure closes the session and
// surfaces as one of the typed errors in this package.
func (l *Launcher) Launch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateRunning {
		return errors.New("agent is already running; disconnect first")
	}

	listener := l.listener()

	t, err := l.connect(ctx, listener)
	if err != nil {
		return err
	}

	// Any failure from here on follows the same exit: log, close the
	// session, clear it, report the closure.
	fail := func(err error) error {
		fmt.Fprintln(listener.Error("launch failed"), err)

		_ = t.Close()
		l.sess = nil
		l.state = stateClosed
		logf(listener, "Connection closed")

		return err
	}

	res, err := l.verifyAndResolve(ctx, t, listener)
	if err != nil {
		return fail(err)
	}

	data, err := l.readPayload()
	if err != nil {
		return fail(&TransferError{Path: res.dir, Err: err})
	}

	if _, err := transfer.Put(ctx, t, data, res.dir, PayloadName, listener.Logger()); err != nil {
		return fail(&TransferError{Path: res.dir + "/" + PayloadName, Err: err})
	}

	command, err := launchCommand(res.dir, res.java, l.Target.JavaOptions)
	if err != nil {
		return fail(&LaunchError{Err: err})
	}

	logf(listener, "Starting agent process: %s", command)

	proc, err := t.Start(ctx, command)
	if err != nil {
		return fail(&LaunchError{Err: err})
	}

	// Surface agent diagnostics; ends naturally when the remote process
	// exits and its stderr closes.
	go func() { _, _ = io.Copy(listener.Logger(), proc.Stderr()) }()

	closeProc := closeHook(listener, []namedCloser{
		{"command channel", proc.Close},
		{"agent stdin", proc.Stdin().Close},
	})

	onClosed := func(cause error) {
		if cause != nil {
			fmt.Fprintln(listener.Error("agent connection terminated"), cause)
		}

		closeProc()
	}

	// A cancellation while the binder is blocked must tear down the
	// in-flight command channel rather than leak it.
	bindDone := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = proc.Close()
		case <-bindDone:
		}
	}()

	ch, err := l.Bind(proc.Stdout(), proc.Stdin(), listener.Logger(), onClosed)

	close(bindDone)

	if err != nil {
		_ = proc.Close()

		if ctx.Err() != nil {
			return fail(&LaunchError{Err: fmt.Errorf("aborted during connection open: %w", ctx.Err())})
		}

		return fail(&LaunchError{Err: err})
	}

	l.sess = t
	l.channel = ch
	l.state = stateRunning

	return nil
}

// Probe runs the front half of the bootstrap — connect, channel check,
// environment report, runtime resolution — and reports the java path it
// would use, without transferring or launching anything.
func (l *Launcher) Probe(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateRunning {
		return "", errors.New("agent is already running; disconnect first")
	}

	listener := l.listener()

	t, err := l.connect(ctx, listener)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = t.Close()
		logf(listener, "Connection closed")
	}()

	res, err := l.verifyAndResolve(ctx, t, listener)
	if err != nil {
		fmt.Fprintln(listener.Error("probe failed"), err)

		return "", err
	}

	return res.java, nil
}

// Disconnect tears the running agent down: the channel is closed (which
// triggers the stream close hook), the payload is removed from the host,
// and the session is discarded. Removal failures are logged, never raised.
func (l *Launcher) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess == nil {
		return nil
	}

	listener := l.listener()

	if l.channel != nil {
		if err := l.channel.Close(); err != nil {
			fmt.Fprintln(listener.Error("error while closing channel"), err)
		}

		l.channel = nil
	}

	dir := NormalizeRoot(l.Node.RemoteRoot())
	if err := transfer.Remove(ctx, l.sess, dir, PayloadName); err != nil {
		fmt.Fprintln(listener.Error("failed to remove remote agent payload"), err)
	}

	_ = l.sess.Close()
	l.sess = nil
	l.state = stateClosed
	logf(listener, "Connection closed")

	return nil
}

// connect dials and authenticates, mapping failures into ConnectError or
// AuthError. On success the caller owns the returned transport.
func (l *Launcher) connect(ctx context.Context, listener Listener) (transport, error) {
	host := l.Target.Host

	port := l.Target.Port
	if port == 0 {
		port = 22
	}

	logf(listener, "Opening SSH connection to %s:%d", host, port)

	t, err := l.dialTransport(ctx, listener)
	if err != nil {
		if errors.Is(err, session.ErrAuth) {
			logf(listener, "Authentication failed")

			return nil, &AuthError{User: l.Target.User, Err: err}
		}

		return nil, &ConnectError{Addr: fmt.Sprintf("%s:%d", host, port), Err: err}
	}

	logf(listener, "Authentication successful")

	return t, nil
}

func (l *Launcher) dialTransport(ctx context.Context, listener Listener) (transport, error) {
	if l.dial != nil {
		return l.dial(ctx)
	}

	cfg := session.Config{
		Host:               l.Target.Host,
		Port:               l.Target.Port,
		User:               l.Target.User,
		Password:           l.Target.Password.Reveal(),
		KeyPath:            l.Target.KeyPath,
		KeyPassphrase:      l.Target.KeyPassphrase.Reveal(),
		Timeout:            l.Target.DialTimeout,
		HostKeyCheck:       l.Target.HostKeyCallback,
		InsecureSkipVerify: l.Target.InsecureHostKey,
		ExitStatusWait:     l.Target.ExitStatusWait,
	}

	s, err := session.Dial(ctx, cfg, listener.Logger())
	if err != nil {
		return nil, err
	}

	return sshTransport{s}, nil
}

type resolveResult struct {
	dir  string
	java string
}

// verifyAndResolve covers the shared middle of Launch and Probe: the
// channel cleanliness check, the environment report and runtime
// resolution.
func (l *Launcher) verifyAndResolve(ctx context.Context, t transport, listener Listener) (resolveResult, error) {
	// A shell that injects banner or MOTD text ahead of command output
	// would corrupt every protocol layered over it later.
	var junk bytes.Buffer
	if _, err := t.Run(ctx, "true", &junk); err != nil {
		return resolveResult{}, &ConnectError{Addr: l.Target.Host, Err: err}
	}

	if junk.Len() > 0 {
		logf(listener, "The SSH server injects text before command output; agent streams would be corrupted:")
		fmt.Fprintln(listener.Logger(), junk.String())

		return resolveResult{}, &JunkError{Output: junk.String()}
	}

	logf(listener, "Remote user environment is:")

	if _, err := t.Run(ctx, "set", listener.Logger()); err != nil {
		return resolveResult{}, &ConnectError{Addr: l.Target.Host, Err: err}
	}

	dir := NormalizeRoot(l.Node.RemoteRoot())

	java, err := jdk.Resolve(ctx, t,
		l.Providers,
		jdk.Env{WorkDir: dir, Properties: l.Node.Properties()},
		jdk.Options{Override: l.Target.JavaPath, JavaOptions: l.Target.JavaOptions},
		listener.Logger(),
	)
	if err != nil {
		nf := &jdk.NotFoundError{}
		if errors.As(err, &nf) {
			return resolveResult{}, &ResolveError{Tried: nf.Tried, Err: err}
		}

		return resolveResult{}, &ResolveError{Err: err}
	}

	return resolveResult{dir: dir, java: java}, nil
}

func (l *Launcher) readPayload() ([]byte, error) {
	rc, err := l.Payload.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent payload: %w", err)
	}

	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read agent payload: %w", err)
	}

	return data, nil
}

func (l *Launcher) listener() Listener {
	if l.Listener == nil {
		return DiscardListener{}
	}

	return l.Listener
}

// launchCommand composes the remote start command. JavaOptions is run
// through shlex so malformed quoting fails here, on the controller, instead
// of producing a mangled remote command line.
func launchCommand(dir, java, options string) (string, error) {
	parts := []string{java}

	if options != "" {
		args, err := shlex.Split(options)
		if err != nil {
			return "", fmt.Errorf("bad java options %q: %w", options, err)
		}

		for _, a := range args {
			if strings.ContainsAny(a, " '\"") {
				a = session.Quote(a)
			}

			parts = append(parts, a)
		}
	}

	parts = append(parts, "-jar", PayloadName)

	return fmt.Sprintf("cd %s && %s", session.Quote(dir), strings.Join(parts, " ")), nil
}

type namedCloser struct {
	name  string
	close func() error
}

// closeHook returns a one-shot teardown that closes each resource in order,
// logging per-entry failures without letting one abort its siblings.
// Invoking it more than once is a no-op.
func closeHook(listener Listener, closers []namedCloser) func() {
	var once sync.Once

	return func() {
		once.Do(func() {
			for _, c := range closers {
				if err := c.close(); err != nil {
					fmt.Fprintln(listener.Error("error while closing "+c.name), err)
				}
			}
		})
	}
}
