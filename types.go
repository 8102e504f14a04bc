package sshlaunch

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/halverson/sshlaunch/jdk"
)

// PayloadName is the file name the agent payload is stored under in the
// remote working directory.
const PayloadName = "agent.jar"

// Secret holds credential material. It formats as a mask so that secrets
// cannot leak through logging or %v verbs; callers that genuinely need the
// value use Reveal.
type Secret string

// Reveal returns the raw secret value.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}

	return "******"
}

// GoString masks the value under %#v as well.
func (s Secret) GoString() string { return s.String() }

// Target identifies the remote host and how to authenticate against it.
// It is treated as immutable once a launch begins.
type Target struct {
	Host     string
	Port     int // 0 means 22
	User     string // empty means the local user name
	Password Secret // empty is still attempted as a last resort

	// KeyPath optionally points at a private key file. PuTTY .ppk files
	// are converted in memory; everything else is handed to x/crypto as-is.
	KeyPath       string
	KeyPassphrase Secret

	// JavaPath skips runtime resolution entirely when set.
	JavaPath string

	// JavaOptions is passed verbatim on the java command line, both when
	// probing candidates and when starting the agent.
	JavaOptions string

	// HostKeyCallback verifies the server's host key. When nil and
	// InsecureHostKey is false, Launch fails validation.
	HostKeyCallback ssh.HostKeyCallback
	InsecureHostKey bool

	DialTimeout time.Duration // 0 means 10s

	// ExitStatusWait bounds how long a one-shot command waits for its exit
	// status after output has drained. 0 means 3s; -1 is reported on
	// expiry rather than hanging.
	ExitStatusWait time.Duration
}

// Node describes the machine being provisioned: where the agent lives and
// which recorded properties the runtime resolver may consult.
type Node interface {
	// RemoteRoot is the agent's filesystem root on the host. Trailing
	// separators are stripped before use.
	RemoteRoot() string

	// Properties returns environment and tool-location records in the
	// order they were declared.
	Properties() []jdk.Property
}

// StaticNode is a Node with fixed values.
type StaticNode struct {
	Root  string
	Props []jdk.Property
}

func (n StaticNode) RemoteRoot() string         { return n.Root }
func (n StaticNode) Properties() []jdk.Property { return n.Props }

// NormalizeRoot strips trailing path separators from a remote root.
// It is idempotent and never produces a trailing separator.
func NormalizeRoot(root string) string {
	for strings.HasSuffix(root, "/") && root != "/" {
		root = strings.TrimSuffix(root, "/")
	}

	return root
}

// PayloadSource supplies the bytes of the agent payload. The launcher does
// not locate or build payloads itself.
type PayloadSource interface {
	Open() (io.ReadCloser, error)
}

// BytesPayload serves a payload from memory.
type BytesPayload []byte

// Open returns a reader over the in-memory payload.
func (b BytesPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FilePayload serves a payload from a local file.
type FilePayload string

// Open opens the payload file.
func (f FilePayload) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// Channel is the caller's long-lived communication abstraction bound over
// the agent's stdio. The launcher only ever closes it.
type Channel interface {
	Close() error
}

// Binder constructs the caller's channel from the agent's raw streams.
// stdout and stdin belong to the remote process; log receives diagnostic
// text. The binder must arrange for onClosed to run exactly once when the
// channel shuts down, passing the fatal stream error if there was one.
type Binder func(stdout io.Reader, stdin io.WriteCloser, log io.Writer, onClosed func(error)) (Channel, error)
