package session

import (
	"errors"
	"os/user"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds all parameters required to establish the transport session.
type Config struct {
	// Connection details
	Host string
	Port int    // default 22
	User string // default: the local user name

	// Credentials, tried strictly in this order:
	//  1. default key files under ~/.ssh (only when neither KeyPath nor
	//     Password was supplied explicitly)
	//  2. KeyPath, converted from PuTTY format in memory when necessary
	//  3. Password (even when empty)
	Password      string
	KeyPath       string
	KeyPassphrase string

	// Connection settings
	Timeout            time.Duration       // dial timeout (default 10s)
	HostKeyCheck       ssh.HostKeyCallback // host key verification policy
	InsecureSkipVerify bool                // disables host key checking; testing only

	// ExitStatusWait bounds the wait for an exit status after a one-shot
	// command's output has drained (default 3s). On expiry Run reports -1
	// instead of hanging.
	ExitStatusWait time.Duration
}

// NewConfig creates a Config with safe defaults.
// Note: it does NOT set a HostKeyCheck. Provide one or set
// InsecureSkipVerify=true.
func NewConfig(host, username string) Config {
	return Config{
		Host:    host,
		User:    username,
		Port:    22,
		Timeout: 10 * time.Second,
	}
}

// WithDefaults fills in zero-valued fields.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}

	if c.User == "" {
		if u, err := user.Current(); err == nil {
			c.User = u.Username
		}
	}

	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}

	if c.ExitStatusWait == 0 {
		c.ExitStatusWait = 3 * time.Second
	}

	if c.InsecureSkipVerify && c.HostKeyCheck == nil {
		c.HostKeyCheck = ssh.InsecureIgnoreHostKey()
	}

	return c
}

// Validate ensures all required fields are present.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("configuration error: host address cannot be empty")
	}

	if c.User == "" {
		return errors.New("configuration error: user cannot be empty")
	}

	if c.HostKeyCheck == nil {
		return errors.New("configuration error: HostKeyCheck is missing; provide a callback (e.g. from known_hosts) or set InsecureSkipVerify=true (testing only)")
	}

	return nil
}

// DefaultKnownHosts returns a HostKeyCallback that verifies the host key
// against the user's ~/.ssh/known_hosts.
func DefaultKnownHosts() (ssh.HostKeyCallback, error) {
	path, err := expandHome("~/.ssh/known_hosts")
	if err != nil {
		return nil, err
	}

	return knownhosts.New(path)
}
