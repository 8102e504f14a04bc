package session

import (
	"fmt"
	"io"
	"os"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
)

// defaultKeyNames are the key files probed under ~/.ssh when no credential
// was configured explicitly, in the order the original OpenSSH tools try
// them.
var defaultKeyNames = []string{"id_rsa", "id_dsa", "identity"}

// authMethods assembles the credential chain in the mandated order. The
// resulting methods are offered to the server strictly in slice order, so
// the first to succeed short-circuits the rest of the chain.
func authMethods(cfg Config, log io.Writer) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	// 1. Default key locations, but only when nothing was configured
	// explicitly.
	if cfg.KeyPath == "" && cfg.Password == "" {
		if signers := defaultKeySigners(cfg.Host, cfg.User, log); len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	// 2. The explicit key, when it exists on disk. A key that fails to
	// load is a diagnostic, not a dead end; password auth still follows.
	if cfg.KeyPath != "" {
		path, err := expandHome(cfg.KeyPath)
		if err != nil {
			return nil, err
		}

		if _, err := os.Stat(path); err == nil {
			signer, err := loadSigner(path, cfg.KeyPassphrase)
			if err != nil {
				fmt.Fprintf(log, "cannot load private key %s: %v\n", path, err)
			} else {
				fmt.Fprintf(log, "Authenticating as %s with public key %s\n", cfg.User, path)
				methods = append(methods, ssh.PublicKeys(signer))
			}
		} else {
			fmt.Fprintf(log, "private key %s does not exist, skipping\n", path)
		}
	}

	// 3. Password, even an empty one.
	fmt.Fprintf(log, "Authenticating as %s with password ******\n", cfg.User)
	methods = append(methods, ssh.Password(cfg.Password))

	return methods, nil
}

// defaultKeySigners probes the well-known key files plus any IdentityFile
// the user's ssh config declares for the host. Missing files are silently
// skipped; unparseable ones are logged and skipped.
func defaultKeySigners(host, username string, log io.Writer) []ssh.Signer {
	paths := make([]string, 0, len(defaultKeyNames)+1)
	for _, name := range defaultKeyNames {
		paths = append(paths, "~/.ssh/"+name)
	}

	// ~/.ssh/config may point at a dedicated identity for this host.
	if identity := ssh_config.Get(host, "IdentityFile"); identity != "" {
		paths = append(paths, identity)
	}

	var signers []ssh.Signer

	seen := make(map[string]bool)

	for _, p := range paths {
		path, err := expandHome(p)
		if err != nil || seen[path] {
			continue
		}

		seen[path] = true

		if _, err := os.Stat(path); err != nil {
			continue
		}

		signer, err := loadSigner(path, "")
		if err != nil {
			fmt.Fprintf(log, "cannot load private key %s: %v\n", path, err)

			continue
		}

		fmt.Fprintf(log, "Authenticating as %s with public key %s\n", username, path)
		signers = append(signers, signer)
	}

	return signers
}

// loadSigner reads a private key file and produces a signer. PuTTY .ppk
// material is converted to a native signer in memory; everything else is
// handed to x/crypto directly.
func loadSigner(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	if isPuTTYKey(data) {
		return parsePuTTYKey(data, passphrase)
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}

		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}
