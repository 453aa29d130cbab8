package sdr

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHLauncher runs the acquisition tool on a remote host, for receivers attached
// to a machine at the antenna.
type SSHLauncher struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
}

// NewSSHLauncher validates configuration and prepares a launcher instance.
func NewSSHLauncher(cfg SSHConfig) (*SSHLauncher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for remote acquisition")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &SSHLauncher{cfg: cfg}, nil
}

type sshProcess struct {
	launcher *SSHLauncher
	session  *ssh.Session
	stdout   io.Reader
	pgid     int
}

// Launch starts binary in a new session on the remote host. The shell prints
// its pid, which is also the process group id, before exec'ing the tool.
func (l *SSHLauncher) Launch(ctx context.Context, binary string, args []string) (Process, error) {
	client, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("ssh stdout pipe: %w", err)
	}

	if err := session.Start(remoteCommand(binary, args)); err != nil {
		session.Close()
		return nil, fmt.Errorf("start remote acquisition: %w", err)
	}

	r := bufio.NewReader(stdout)
	first, err := r.ReadString('\n')
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("read remote process group: %w", err)
	}
	pgid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("unexpected remote process group %q", strings.TrimSpace(first))
	}
	return &sshProcess{launcher: l, session: session, stdout: r, pgid: pgid}, nil
}

func remoteCommand(binary string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, shellQuote(binary))
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	script := "echo $$; exec " + strings.Join(quoted, " ") + " 2>/dev/null"
	return "setsid sh -c " + shellQuote(script)
}

func (p *sshProcess) Stdout() io.Reader { return p.stdout }

// Stop kills the remote process group from a separate session, then closes
// the streaming session.
func (p *sshProcess) Stop() error {
	defer p.session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := p.launcher.dial(ctx)
	if err != nil {
		return err
	}
	kill, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer kill.Close()
	if err := kill.Run(fmt.Sprintf("kill -TERM -- -%d", p.pgid)); err != nil {
		return fmt.Errorf("kill remote process group %d: %w", p.pgid, err)
	}
	return nil
}

// Close drops the cached SSH connection.
func (l *SSHLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

func (l *SSHLauncher) dial(ctx context.Context) (*ssh.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	auth := []ssh.AuthMethod{}
	if l.cfg.Password != "" {
		auth = append(auth, ssh.Password(l.cfg.Password))
	}
	if l.cfg.KeyPath != "" {
		key, err := os.ReadFile(l.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            l.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	l.client = ssh.NewClient(clientConn, chans, reqs)
	return l.client, nil
}

// shellQuote returns a value wrapped in single quotes with embedded quotes escaped
// for safe shell usage.
func shellQuote(value string) string {
	escaped := strings.ReplaceAll(value, "'", "'\\''")
	return fmt.Sprintf("'%s'", escaped)
}
