// Package session owns a single SSH connection to the target host.
//
// It layers three things over "golang.org/x/crypto/ssh": the ordered
// authentication chain (default key files, then an explicit key with
// in-memory PuTTY conversion, then password), a one-shot command executor
// that drains stdout and stderr concurrently and bounds its wait for the
// exit status, and raw process handles whose streams outlive the call that
// started them.
//
// A Session is owned by exactly one launch attempt. Commands on it are
// never issued concurrently; Close is idempotent.
package session
