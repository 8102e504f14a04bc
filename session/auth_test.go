package session

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T, passphrase string) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}

	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return path, sshPub
}

func TestAuthMethods_ExplicitKeyThenPassword(t *testing.T) {
	t.Parallel()

	path, _ := writeTestKey(t, "")

	var log bytes.Buffer

	methods, err := authMethods(Config{
		Host:     "example.com",
		User:     "agent",
		KeyPath:  path,
		Password: "hunter2",
	}, &log)
	require.NoError(t, err)
	assert.Len(t, methods, 2, "explicit key first, password last")
	assert.Contains(t, log.String(), "public key "+path)
	assert.Contains(t, log.String(), "password ******")
	assert.NotContains(t, log.String(), "hunter2", "the password must never be logged")
}

func TestAuthMethods_MissingKeyFileFallsThroughToPassword(t *testing.T) {
	t.Parallel()

	var log bytes.Buffer

	methods, err := authMethods(Config{
		Host:     "example.com",
		User:     "agent",
		KeyPath:  filepath.Join(t.TempDir(), "no-such-key"),
		Password: "pw",
	}, &log)
	require.NoError(t, err)
	assert.Len(t, methods, 1)
	assert.Contains(t, log.String(), "does not exist, skipping")
}

func TestAuthMethods_UnparseableKeyIsDiagnosticOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	var log bytes.Buffer

	methods, err := authMethods(Config{
		Host:     "example.com",
		User:     "agent",
		KeyPath:  path,
		Password: "pw",
	}, &log)
	require.NoError(t, err)
	assert.Len(t, methods, 1, "password auth must survive a bad key")
	assert.Contains(t, log.String(), "cannot load private key")
}

func TestAuthMethods_PasswordAloneIncludesNoKeyProbing(t *testing.T) {
	t.Parallel()

	var log bytes.Buffer

	methods, err := authMethods(Config{
		Host:     "example.com",
		User:     "agent",
		Password: "pw",
	}, &log)
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestLoadSigner_PlainAndEncrypted(t *testing.T) {
	t.Parallel()

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		path, pub := writeTestKey(t, "")

		signer, err := loadSigner(path, "")
		require.NoError(t, err)
		assert.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())
	})

	t.Run("encrypted", func(t *testing.T) {
		t.Parallel()

		path, pub := writeTestKey(t, "letmein")

		signer, err := loadSigner(path, "letmein")
		require.NoError(t, err)
		assert.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()

		path, _ := writeTestKey(t, "letmein")

		_, err := loadSigner(path, "wrong")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decrypt")
	})
}
