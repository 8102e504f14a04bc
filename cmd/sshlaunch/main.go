// Package main is the entrypoint for the sshlaunch CLI, a thin caller
// around the launcher library: it reads a yaml target description, runs the
// bootstrap, and supervises the agent until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halverson/sshlaunch"
)

var version = "dev"

var (
	targetPath string
	askPass    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sshlaunch",
	Short:   "Provision and supervise a worker agent on a remote host over SSH",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&targetPath, "target", "t", "target.yaml", "yaml file describing the target host")
	rootCmd.PersistentFlags().BoolVar(&askPass, "ask-pass", false, "prompt for the SSH password instead of reading it from the target file")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(checkCmd)
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Bootstrap the agent and supervise it until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runLaunch,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect, verify the channel and resolve a runtime without launching anything",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func runLaunch(cmd *cobra.Command, _ []string) error {
	tf, err := loadTarget(targetPath)
	if err != nil {
		return err
	}

	if err := resolvePassword(&tf); err != nil {
		return err
	}

	listener := sshlaunch.WriterListener{W: cmd.OutOrStdout()}

	console := &consoleChannel{}

	l, err := tf.launcher(listener, console.bind)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, disconnecting...")
		cancel()
	}()

	if err := l.Launch(ctx); err != nil {
		return err
	}

	// Block until the agent goes away or the user interrupts.
	select {
	case <-console.Done():
	case <-ctx.Done():
	}

	return l.Disconnect(context.Background())
}

func runCheck(cmd *cobra.Command, _ []string) error {
	tf, err := loadTarget(targetPath)
	if err != nil {
		return err
	}

	if err := resolvePassword(&tf); err != nil {
		return err
	}

	l, err := tf.launcher(sshlaunch.WriterListener{W: cmd.OutOrStdout()}, nil)
	if err != nil {
		return err
	}

	java, err := l.Probe(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "target is launchable; java runtime: %s\n", java)

	return nil
}
