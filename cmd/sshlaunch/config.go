package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/halverson/sshlaunch"
	"github.com/halverson/sshlaunch/jdk"
	"github.com/halverson/sshlaunch/session"
)

// targetFile is the on-disk description of one target host.
type targetFile struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Key           string `yaml:"key"`
	KeyPassphrase string `yaml:"key-passphrase"`

	RemoteRoot  string `yaml:"remote-root"`
	Payload     string `yaml:"payload"`
	JavaPath    string `yaml:"java-path"`
	JavaOptions string `yaml:"java-options"`

	// Env and JDKHomes become the node properties the runtime resolver
	// consults, in file order.
	Env      map[string]string `yaml:"env"`
	JDKHomes []string          `yaml:"jdk-homes"`

	InsecureHostKey bool `yaml:"insecure-host-key"`
}

func loadTarget(path string) (targetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return targetFile{}, fmt.Errorf("cannot read target file: %w", err)
	}

	var tf targetFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return targetFile{}, fmt.Errorf("cannot parse target file %s: %w", path, err)
	}

	if tf.Host == "" {
		return targetFile{}, fmt.Errorf("target file %s does not name a host", path)
	}

	if tf.RemoteRoot == "" {
		return targetFile{}, fmt.Errorf("target file %s does not name a remote-root", path)
	}

	if tf.Payload == "" {
		return targetFile{}, fmt.Errorf("target file %s does not name a payload", path)
	}

	return tf, nil
}

// resolvePassword prompts on the terminal when --ask-pass was given,
// overriding whatever the file says.
func resolvePassword(tf *targetFile) error {
	if !askPass {
		return nil
	}

	fmt.Fprintf(os.Stderr, "password for %s@%s: ", tf.User, tf.Host)

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return fmt.Errorf("cannot read password: %w", err)
	}

	tf.Password = string(secret)

	return nil
}

func (tf targetFile) launcher(listener sshlaunch.Listener, bind sshlaunch.Binder) (*sshlaunch.Launcher, error) {
	target := sshlaunch.Target{
		Host:            tf.Host,
		Port:            tf.Port,
		User:            tf.User,
		Password:        sshlaunch.Secret(tf.Password),
		KeyPath:         tf.Key,
		KeyPassphrase:   sshlaunch.Secret(tf.KeyPassphrase),
		JavaPath:        tf.JavaPath,
		JavaOptions:     tf.JavaOptions,
		InsecureHostKey: tf.InsecureHostKey,
	}

	if !tf.InsecureHostKey {
		check, err := session.DefaultKnownHosts()
		if err != nil {
			return nil, fmt.Errorf("cannot load known_hosts (use insecure-host-key: true for throwaway hosts): %w", err)
		}

		target.HostKeyCallback = check
	}

	var props []jdk.Property
	for name, value := range tf.Env {
		props = append(props, jdk.Property{Kind: jdk.KindEnv, Name: name, Value: value})
	}

	for _, home := range tf.JDKHomes {
		props = append(props, jdk.Property{Kind: jdk.KindToolHome, Name: "jdk", Value: home})
	}

	return &sshlaunch.Launcher{
		Target:   target,
		Node:     sshlaunch.StaticNode{Root: tf.RemoteRoot, Props: props},
		Payload:  sshlaunch.FilePayload(tf.Payload),
		Bind:     bind,
		Listener: listener,
	}, nil
}
