package sshlaunch

import (
	"fmt"
	"strings"
)

// ConnectError reports a failure to open the transport to the host. The
// session never existed; nothing is left to clean up remotely.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot open ssh connection to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports that no credential method succeeded. The session has
// been closed and discarded by the time the caller sees this.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for user %q: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// JunkError reports banner or MOTD text injected ahead of command output.
// Such text would corrupt stream framing, so the launch is abandoned before
// any file transfer.
type JunkError struct {
	Output string
}

func (e *JunkError) Error() string {
	return fmt.Sprintf("ssh channel is not clean; remote shell injected %d bytes ahead of command output: %q", len(e.Output), e.Output)
}

// ResolveError reports that no Java candidate validated. Tried lists every
// path probed, in order.
type ResolveError struct {
	Tried []string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("no supported java runtime found (tried %s); install a JDK on the node", strings.Join(e.Tried, ", "))
}

func (e *ResolveError) Unwrap() error { return e.Err }

// TransferError reports a fatal payload copy failure. An unavailable SFTP
// subsystem is not one of these; that merely selects the SCP fallback.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("cannot copy agent payload to %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// LaunchError reports a failure to start the agent process or to bind its
// stdio to the caller's channel.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch agent process: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
