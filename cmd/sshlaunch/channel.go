package main

import (
	"io"
	"sync"

	"github.com/halverson/sshlaunch"
)

// consoleChannel is the CLI's stand-in for a real RPC channel: it streams
// the agent's stdout into the launch log and reports when the stream ends.
// The RPC protocol a real orchestrator would speak here is not this tool's
// business.
type consoleChannel struct {
	mu    sync.Mutex
	stdin io.WriteCloser
	done  chan struct{}
}

// bind is the sshlaunch.Binder for this channel.
func (c *consoleChannel) bind(stdout io.Reader, stdin io.WriteCloser, log io.Writer, onClosed func(error)) (sshlaunch.Channel, error) {
	c.mu.Lock()
	c.stdin = stdin
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		_, err := io.Copy(log, stdout)
		onClosed(err)
		close(c.done)
	}()

	return c, nil
}

// Done is closed once the agent's stdout stream has ended.
func (c *consoleChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done == nil {
		closed := make(chan struct{})
		close(closed)

		return closed
	}

	return c.done
}

// Close shuts the agent's stdin, which makes a well-behaved agent exit and
// the stdout copier wind down.
func (c *consoleChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin == nil {
		return nil
	}

	err := c.stdin.Close()
	c.stdin = nil

	return err
}
