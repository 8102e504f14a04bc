// Package sshlaunch provisions and supervises a worker agent on a remote
// host reachable only via SSH.
//
// A Launcher drives the whole bootstrap in one synchronous call: it opens an
// authenticated SSH connection, verifies the channel is free of banner junk,
// locates a usable Java runtime on the host, copies the agent payload up
// (SFTP, falling back to SCP when the server lacks an SFTP subsystem),
// starts the agent process and hands its stdio to a caller-supplied channel
// binder. When the channel closes, or when Disconnect is called, the
// launcher removes the payload and tears the connection down.
//
// The long-lived protocol spoken over the bound channel is the caller's
// business; the launcher only delivers raw streams.
//
// Usage:
//
//	l := &sshlaunch.Launcher{
//		Target:   sshlaunch.Target{Host: "build7", User: "ci", KeyPath: "~/.ssh/id_ed25519"},
//		Node:     sshlaunch.StaticNode{Root: "/home/ci/agent"},
//		Payload:  sshlaunch.FilePayload("agent.jar"),
//		Bind:     bindChannel,
//		Listener: sshlaunch.WriterListener{W: os.Stdout},
//	}
//	if err := l.Launch(ctx); err != nil {
//		// err is one of the typed failures: *ConnectError, *AuthError,
//		// *JunkError, *ResolveError, *TransferError, *LaunchError.
//	}
package sshlaunch
