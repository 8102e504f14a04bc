//go:build integration

package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sshTestImage     = "lscr.io/linuxserver/openssh-server:latest"
	sshTestContainer = "sshlaunch-test-sshd"
	sshTestPort      = 2224
	sshTestUser      = "testuser"
	sshTestPassword  = "testpass"
)

func TestIntegration(t *testing.T) {
	cfg, cleanup := setupSSHD(t)
	defer cleanup()

	ctx := context.Background()

	var log bytes.Buffer

	s, err := Dial(ctx, cfg, &log)
	require.NoError(t, err)
	defer s.Close()

	t.Run("run captures combined output", func(t *testing.T) {
		var out bytes.Buffer

		code, err := s.Run(ctx, "echo hello; echo oops >&2", &out)
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Contains(t, out.String(), "hello")
		assert.Contains(t, out.String(), "oops")
	})

	t.Run("run reports nonzero exit", func(t *testing.T) {
		code, err := s.Run(ctx, "exit 3", io.Discard)
		require.NoError(t, err)
		assert.Equal(t, 3, code)
	})

	t.Run("clean channel check", func(t *testing.T) {
		var out bytes.Buffer

		code, err := s.Run(ctx, "true", &out)
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Empty(t, out.String())
	})

	t.Run("start exposes live streams", func(t *testing.T) {
		p, err := s.Start(ctx, "cat")
		require.NoError(t, err)
		defer p.Close()

		_, err = io.WriteString(p.Stdin(), "roundtrip\n")
		require.NoError(t, err)
		require.NoError(t, p.Stdin().Close())

		data, err := io.ReadAll(p.Stdout())
		require.NoError(t, err)
		assert.Equal(t, "roundtrip\n", string(data))
	})

	t.Run("sftp put and remove", func(t *testing.T) {
		client, err := s.SFTP()
		require.NoError(t, err)
		defer client.Close()

		f, err := client.Create("/config/itest-payload")
		require.NoError(t, err)

		_, err = f.Write([]byte("payload"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		var out bytes.Buffer

		_, err = s.Run(ctx, "cat /config/itest-payload", &out)
		require.NoError(t, err)
		assert.Equal(t, "payload", out.String())

		require.NoError(t, client.Remove("/config/itest-payload"))
	})

	t.Run("wrong password maps to ErrAuth", func(t *testing.T) {
		bad := cfg
		bad.Password = "nope"

		_, err := Dial(ctx, bad, io.Discard)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuth)
	})
}

func setupSSHD(t *testing.T) (Config, func()) {
	t.Helper()

	host := os.Getenv("SSH_TEST_HOST")
	if host != "" {
		return Config{
			Host:               host,
			Port:               sshTestPort,
			User:               sshTestUser,
			Password:           sshTestPassword,
			Timeout:            5 * time.Second,
			InsecureSkipVerify: true,
		}, func() {}
	}

	_ = exec.Command("docker", "rm", "-f", sshTestContainer).Run()

	cmd := exec.Command("docker", "run", "-d",
		"--name", sshTestContainer,
		"-p", fmt.Sprintf("%d:2222", sshTestPort),
		"-e", "PUID=1000",
		"-e", "PGID=1000",
		"-e", "USER_NAME="+sshTestUser,
		"-e", "USER_PASSWORD="+sshTestPassword,
		"-e", "PASSWORD_ACCESS=true",
		sshTestImage,
	)

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to start docker container: %s", out)

	cleanup := func() {
		if os.Getenv("KEEP_SSH_CONTAINER") == "" {
			_ = exec.Command("docker", "rm", "-f", sshTestContainer).Run()
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", sshTestPort)
	if !waitForPort(addr, 30*time.Second) {
		logs, _ := exec.Command("docker", "logs", sshTestContainer).CombinedOutput()
		cleanup()
		t.Fatalf("sshd never became ready at %s. Logs:\n%s", addr, logs)
	}

	// Grace period for sshd to finish its first-boot key generation.
	time.Sleep(3 * time.Second)

	return Config{
		Host:               "127.0.0.1",
		Port:               sshTestPort,
		User:               sshTestUser,
		Password:           sshTestPassword,
		Timeout:            5 * time.Second,
		InsecureSkipVerify: true,
	}, cleanup
}

func waitForPort(addr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()

			return true
		}

		time.Sleep(500 * time.Millisecond)
	}

	return false
}
