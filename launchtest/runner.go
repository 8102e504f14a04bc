// Package launchtest provides test doubles for the command-execution
// surface the launcher drives, so resolver and transfer behavior can be
// exercised without a network.
package launchtest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"
)

// Response scripts the outcome of one remote command.
type Response struct {
	Output string
	Code   int
	Err    error
}

// ScriptRunner replays scripted responses keyed by exact command string and
// records every command it sees. Unscripted commands succeed silently,
// which keeps incidental bookkeeping commands (true, set, rm) out of most
// test scripts.
type ScriptRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []string
}

// NewScriptRunner builds a runner with the given script.
func NewScriptRunner(responses map[string]Response) *ScriptRunner {
	return &ScriptRunner{responses: responses}
}

// On adds or replaces the response for command.
func (r *ScriptRunner) On(command string, resp Response) *ScriptRunner {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responses == nil {
		r.responses = make(map[string]Response)
	}

	r.responses[command] = resp

	return r
}

// Run implements the runner contract.
func (r *ScriptRunner) Run(_ context.Context, command string, sink io.Writer) (int, error) {
	r.mu.Lock()
	resp, ok := r.responses[command]
	r.calls = append(r.calls, command)
	r.mu.Unlock()

	if !ok {
		return 0, nil
	}

	if resp.Output != "" {
		if _, err := io.WriteString(sink, resp.Output); err != nil {
			return -1, err
		}
	}

	return resp.Code, resp.Err
}

// Calls returns the commands run so far, in order.
func (r *ScriptRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

// CallCount returns how many times command was run.
func (r *ScriptRunner) CallCount(command string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, c := range r.calls {
		if c == command {
			n++
		}
	}

	return n
}

// Runner is a testify/mock implementation of the runner contract, for tests
// that care about exact call expectations rather than scripted replay.
type Runner struct {
	mock.Mock
}

// Run mocks one remote command execution. Script output with WriteOutput.
func (m *Runner) Run(ctx context.Context, command string, sink io.Writer) (int, error) {
	args := m.Called(ctx, command, sink)

	return args.Int(0), args.Error(1)
}

// WriteOutput is a helper for pushing scripted output into the sink
// argument of a mocked Run call.
// Usage: r.On("Run", mock.Anything, cmd, mock.Anything).Run(launchtest.WriteOutput("out")).Return(0, nil).
func WriteOutput(content string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if w, ok := args.Get(2).(io.Writer); ok && w != nil {
			fmt.Fprint(w, content)
		}
	}
}
