package shell

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHDialer opens interactive SSH shells with password authentication.
// Host keys are not verified: the monitor talks to lab fleets where APs
// are reflashed and re-keyed constantly.
type SSHDialer struct {
	// Username and Password authenticate against every AP.
	Username string
	Password string

	// Timeout bounds the TCP connect and the SSH handshake.
	Timeout time.Duration
}

// Dial connects to addr, completes the SSH handshake, and starts a shell
// with a requested pty so the device presents its interactive console.
func (d *SSHDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultLostTimeout
	}

	var nd net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tcp, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	cfg := &ssh.ClientConfig{
		User:            d.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(d.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcp, addr, cfg)
	if err != nil {
		_ = tcp.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ssh session to %s: %w", addr, err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ssh stdin to %s: %w", addr, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ssh stdout to %s: %w", addr, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty("vt100", 80, 200, modes); err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ssh pty to %s: %w", addr, err)
	}
	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ssh shell to %s: %w", addr, err)
	}

	return &sshShell{client: client, sess: sess, stdin: stdin, stdout: stdout}, nil
}

// sshShell adapts an ssh client + session pair to the Conn interface.
type sshShell struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
}

func (c *sshShell) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *sshShell) Reader() io.Reader           { return c.stdout }

func (c *sshShell) Close() error {
	_ = c.sess.Close()
	return c.client.Close()
}
