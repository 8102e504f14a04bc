package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// PushSCP copies one in-memory blob to dir/name over the SCP sink protocol.
// It exists for hosts whose sshd has no SFTP subsystem; the counterpart scp
// binary on the remote side is the lowest common denominator.
func (s *Session) PushSCP(ctx context.Context, dir, name string, perm os.FileMode, data []byte) error {
	p, err := s.Start(ctx, "scp -t "+Quote(dir))
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if err := scpSink(p.Stdin(), p.Stdout(), name, perm, data); err != nil {
		return fmt.Errorf("scp to %s failed: %w", dir, err)
	}

	return p.Wait()
}

// scpSink speaks the source half of the protocol: each step is acknowledged
// by the remote sink with a single status byte before the next may proceed.
func scpSink(in io.WriteCloser, out io.Reader, name string, perm os.FileMode, data []byte) error {
	r := bufio.NewReader(out)

	if err := readAck(r); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(in, "C%04o %d %s\n", perm.Perm(), len(data), name); err != nil {
		return err
	}

	if err := readAck(r); err != nil {
		return err
	}

	if _, err := in.Write(data); err != nil {
		return err
	}

	if _, err := in.Write([]byte{0}); err != nil {
		return err
	}

	if err := readAck(r); err != nil {
		return err
	}

	return in.Close()
}

func readAck(r *bufio.Reader) error {
	code, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("remote scp closed the stream: %w", err)
	}

	if code == 0 {
		return nil
	}

	// 1 is a warning, 2 is fatal; both carry a message line.
	msg, _ := r.ReadString('\n')

	return fmt.Errorf("remote scp error (status %d): %s", code, msg)
}
