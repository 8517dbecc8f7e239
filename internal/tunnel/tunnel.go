// Package tunnel opens SSH local port forwards to data sources that are
// only reachable through a jump host.
//
// The forward is an `ssh -N -L` child process. Each query gets its own
// tunnel and the caller must Close the handle when the query finishes.
package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSSHBinary     = "ssh"
	defaultKeyscanBinary = "ssh-keyscan"
	defaultPortAttempts  = 64
	defaultReadyTimeout  = 10 * time.Second
	defaultKeyscanWait   = 5 * time.Second

	minPort = 1024
	maxPort = 65535
)

// Config describes one forward: TargetHost:TargetPort as seen from JumpHost.
// JumpHost may carry an explicit ":port".
type Config struct {
	JumpHost   string
	Username   string
	PrivateKey string
	TargetHost string
	TargetPort int
}

// Error reports the stage at which establishing a tunnel failed.
type Error struct {
	Stage    string
	JumpHost string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ssh tunnel via %s: %s: %v", e.JumpHost, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Manager struct {
	SSHBinary     string
	KeyscanBinary string
	TempDir       string
	PortAttempts  int
	ReadyTimeout  time.Duration
	Logger        *slog.Logger

	// Probe checks that the forward accepts connections. Nil dials addr.
	Probe func(ctx context.Context, addr string) error
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{Logger: logger}
}

// Establish starts a forward and returns once the local port accepts
// connections. On failure every temp file is already removed.
func (m *Manager) Establish(ctx context.Context, cfg Config) (*Handle, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, &Error{Stage: "config", JumpHost: cfg.JumpHost, Err: err}
	}
	jumpHost, jumpPort := splitJumpHost(cfg.JumpHost)
	logger := m.logger().With("jump_host", jumpHost, "target_host", cfg.TargetHost, "target_port", cfg.TargetPort)

	handle := &Handle{logger: logger}
	fail := func(stage string, err error) (*Handle, error) {
		_ = handle.Close()
		return nil, &Error{Stage: stage, JumpHost: cfg.JumpHost, Err: err}
	}

	keyPath, err := m.writeKeyFile(cfg.PrivateKey)
	if err != nil {
		return fail("key_file", err)
	}
	handle.Files = append(handle.Files, keyPath)

	knownHostsPath, err := m.scanKnownHosts(ctx, logger, jumpHost, jumpPort)
	if knownHostsPath != "" {
		handle.Files = append(handle.Files, knownHostsPath)
	}
	if err != nil {
		return fail("known_hosts", err)
	}

	port, err := m.pickPort()
	if err != nil {
		return fail("port", err)
	}
	handle.LocalPort = port

	args := []string{
		"-N", "-T",
		"-i", keyPath,
		"-L", fmt.Sprintf("%d:%s:%d", port, cfg.TargetHost, cfg.TargetPort),
		"-o", "UserKnownHostsFile=" + knownHostsPath,
		"-o", "StrictHostKeyChecking=yes",
		"-o", "ExitOnForwardFailure=yes",
		"-o", "BatchMode=yes",
	}
	if jumpPort != "" {
		args = append(args, "-p", jumpPort)
	}
	args = append(args, cfg.Username+"@"+jumpHost)

	cmd := exec.Command(m.sshBinary(), args...)
	handle.stderr = &limitedBuffer{limit: 4096}
	cmd.Stderr = handle.stderr
	if err := cmd.Start(); err != nil {
		return fail("spawn", err)
	}
	handle.start(cmd)
	logger.Debug("ssh tunnel process started", "local_port", port, "pid", cmd.Process.Pid)

	if err := m.waitReady(ctx, handle); err != nil {
		return fail("ready", err)
	}
	return handle, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.JumpHost == "":
		return errors.New("jump host is required")
	case cfg.Username == "":
		return errors.New("ssh username is required")
	case cfg.PrivateKey == "":
		return errors.New("ssh private key is required")
	case cfg.TargetHost == "":
		return errors.New("target host is required")
	case cfg.TargetPort <= 0 || cfg.TargetPort > maxPort:
		return fmt.Errorf("target port %d out of range", cfg.TargetPort)
	}
	return nil
}

func splitJumpHost(raw string) (string, string) {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return raw, ""
	}
	return host, port
}

func (m *Manager) writeKeyFile(key string) (string, error) {
	file, err := os.CreateTemp(m.TempDir, "buster-ssh-key-*")
	if err != nil {
		return "", fmt.Errorf("create key file: %w", err)
	}
	path := file.Name()
	if err := file.Chmod(0o600); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("restrict key file: %w", err)
	}
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if _, err := io.WriteString(file, key); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write key file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close key file: %w", err)
	}
	return path, nil
}

// scanKnownHosts captures the jump host key. A failed scan leaves the file
// empty and is only logged; ssh then refuses the host on its own.
func (m *Manager) scanKnownHosts(ctx context.Context, logger *slog.Logger, host, port string) (string, error) {
	file, err := os.CreateTemp(m.TempDir, "buster-known-hosts-*")
	if err != nil {
		return "", fmt.Errorf("create known_hosts file: %w", err)
	}
	path := file.Name()
	defer file.Close()

	scanCtx, cancel := context.WithTimeout(ctx, defaultKeyscanWait+time.Second)
	defer cancel()

	args := []string{"-T", strconv.Itoa(int(defaultKeyscanWait / time.Second))}
	if port != "" {
		args = append(args, "-p", port)
	}
	args = append(args, host)
	cmd := exec.CommandContext(scanCtx, m.keyscanBinary(), args...)
	cmd.Stdout = file
	if err := cmd.Run(); err != nil {
		logger.Warn("ssh-keyscan failed, continuing with partial known_hosts", "error", err)
	}
	return path, nil
}

func (m *Manager) pickPort() (int, error) {
	attempts := m.PortAttempts
	if attempts <= 0 {
		attempts = defaultPortAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := minPort + rand.IntN(maxPort-minPort+1)
		listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(candidate)))
		if err != nil {
			lastErr = err
			continue
		}
		if err := listener.Close(); err != nil {
			lastErr = err
			continue
		}
		return candidate, nil
	}
	return 0, fmt.Errorf("no free local port after %d attempts: %w", attempts, lastErr)
}

func (m *Manager) waitReady(ctx context.Context, handle *Handle) error {
	timeout := m.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := m.Probe
	if probe == nil {
		probe = dialProbe
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(handle.LocalPort))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-handle.exited:
			return fmt.Errorf("ssh exited before the forward was ready: %v: %s", handle.waitErr, strings.TrimSpace(handle.stderr.String()))
		default:
		}
		if err := probe(readyCtx, addr); err == nil {
			return nil
		}
		select {
		case <-readyCtx.Done():
			return fmt.Errorf("forward on %s not ready: %w", addr, readyCtx.Err())
		case <-handle.exited:
		case <-ticker.C:
		}
	}
}

func dialProbe(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: 250 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.Logger
}

func (m *Manager) sshBinary() string {
	if m.SSHBinary == "" {
		return defaultSSHBinary
	}
	return m.SSHBinary
}

func (m *Manager) keyscanBinary() string {
	if m.KeyscanBinary == "" {
		return defaultKeyscanBinary
	}
	return m.KeyscanBinary
}

// Handle owns a running forward and its temp files.
type Handle struct {
	LocalPort int
	Files     []string

	logger  *slog.Logger
	cmd     *exec.Cmd
	stderr  *limitedBuffer
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

func (h *Handle) start(cmd *exec.Cmd) {
	h.cmd = cmd
	h.exited = make(chan struct{})
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()
}

// Close kills the ssh process, waits for it and removes the temp files.
// It is safe to call more than once and on a partially established handle.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		var errs []error
		if h.cmd != nil && h.cmd.Process != nil {
			if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("kill ssh process: %w", err))
			}
			<-h.exited
		}
		for _, path := range h.Files {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			}
		}
		h.closeErr = errors.Join(errs...)
		if h.logger != nil {
			h.logger.Debug("ssh tunnel closed", "local_port", h.LocalPort, "error", h.closeErr)
		}
	})
	return h.closeErr
}

// limitedBuffer keeps the first limit bytes of the process stderr.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
