package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halverson/sshlaunch"
	"github.com/halverson/sshlaunch/jdk"
)

func writeTargetFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadTarget(t *testing.T) {
	t.Parallel()

	t.Run("complete file", func(t *testing.T) {
		t.Parallel()

		tf, err := loadTarget(writeTargetFile(t, `
host: build-07.example.com
port: 2222
user: agent
password: hunter2
remote-root: /home/agent/
payload: ./agent.jar
java-options: -Xmx512m
env:
  JAVA_HOME: /opt/jdk11
jdk-homes:
  - /opt/jdk8
insecure-host-key: true
`))
		require.NoError(t, err)
		assert.Equal(t, "build-07.example.com", tf.Host)
		assert.Equal(t, 2222, tf.Port)
		assert.Equal(t, "/home/agent/", tf.RemoteRoot)
		assert.Equal(t, "-Xmx512m", tf.JavaOptions)
		assert.Equal(t, "/opt/jdk11", tf.Env["JAVA_HOME"])
		assert.Equal(t, []string{"/opt/jdk8"}, tf.JDKHomes)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := loadTarget(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		_, err := loadTarget(writeTargetFile(t, "host: [unclosed"))
		require.Error(t, err)
	})

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing host",
			content: "remote-root: /home/agent\npayload: agent.jar\n",
			wantErr: "host",
		},
		{
			name:    "missing remote root",
			content: "host: h\npayload: agent.jar\n",
			wantErr: "remote-root",
		},
		{
			name:    "missing payload",
			content: "host: h\nremote-root: /home/agent\n",
			wantErr: "payload",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadTarget(writeTargetFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTargetFileLauncher(t *testing.T) {
	t.Parallel()

	tf := targetFile{
		Host:            "build-07.example.com",
		User:            "agent",
		Password:        "hunter2",
		RemoteRoot:      "/home/agent",
		Payload:         "./agent.jar",
		JavaPath:        "/opt/jdk11/bin/java",
		Env:             map[string]string{"JAVA_HOME": "/opt/jdk11"},
		JDKHomes:        []string{"/opt/jdk8"},
		InsecureHostKey: true,
	}

	l, err := tf.launcher(sshlaunch.DiscardListener{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "build-07.example.com", l.Target.Host)
	assert.Equal(t, "hunter2", l.Target.Password.Reveal())
	assert.NotContains(t, l.Target.Password.String(), "hunter2")
	assert.Equal(t, "/opt/jdk11/bin/java", l.Target.JavaPath)
	assert.True(t, l.Target.InsecureHostKey)
	assert.Equal(t, "/home/agent", l.Node.RemoteRoot())

	props := l.Node.Properties()
	assert.Contains(t, props, jdk.Property{Kind: jdk.KindEnv, Name: "JAVA_HOME", Value: "/opt/jdk11"})
	assert.Contains(t, props, jdk.Property{Kind: jdk.KindToolHome, Name: "jdk", Value: "/opt/jdk8"})
}
