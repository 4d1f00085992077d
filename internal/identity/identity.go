// Package identity manages the Tor circuit every crawl request rides on.
// It adopts an already-running Tor daemon when one is listening, launches
// an embedded daemon otherwise, and falls back to the system tor binary
// as a last resort.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/tornago"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/cargpt/ads-crawler/internal/config"
)

// ErrIdentityUnavailable means no Tor SOCKS endpoint could be adopted or
// launched. The crawl cannot proceed without one.
var ErrIdentityUnavailable = errors.New("identity: no usable tor endpoint")

// Manager owns the lifecycle of the Tor endpoint. All methods are safe
// for use from a single goroutine; the orchestrator is the only caller.
type Manager struct {
	cfg    config.IdentityConfig
	logger *zap.Logger

	mu        sync.Mutex
	socksAddr string
	embedded  *tornago.TorProcess
	fallback  *exec.Cmd
}

// NewManager creates an inactive manager. Call EnsureActive before use.
func NewManager(cfg config.IdentityConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// SocksAddr returns the active SOCKS5 endpoint, or "" when inactive.
func (m *Manager) SocksAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socksAddr
}

// EnsureActive makes sure a verified Tor SOCKS endpoint is available,
// trying in order: well-known local ports, an embedded daemon, the
// system tor binary. Returns ErrIdentityUnavailable when all three fail.
func (m *Manager) EnsureActive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socksAddr != "" {
		if err := m.verifyAddr(ctx, m.socksAddr); err == nil {
			return nil
		}
		m.logger.Warn("active tor endpoint stopped responding", zap.String("addr", m.socksAddr))
		m.teardownLocked()
	}

	for _, port := range m.cfg.SocksPorts {
		addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
		if err := m.verifyAddr(ctx, addr); err == nil {
			m.logger.Info("adopted running tor daemon", zap.String("addr", addr))
			m.socksAddr = addr
			return nil
		}
	}

	err := m.launchEmbedded(ctx)
	if err == nil {
		return nil
	}
	m.logger.Warn("embedded tor launch failed", zap.Error(err))

	if err := m.launchSystem(ctx); err != nil {
		m.logger.Error("system tor launch failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return nil
}

// Rotate discards the current circuit and establishes a fresh endpoint.
// A daemon this manager launched is restarted; a daemon it merely
// adopted is re-verified, since its lifecycle belongs to someone else.
func (m *Manager) Rotate(ctx context.Context) error {
	m.mu.Lock()
	owned := m.embedded != nil || m.fallback != nil
	if owned {
		m.teardownLocked()
	} else {
		m.logger.Warn("rotating an adopted tor daemon only re-verifies it")
		m.socksAddr = ""
	}
	m.mu.Unlock()

	return m.EnsureActive(ctx)
}

// Verify confirms the active endpoint actually routes traffic by
// fetching the configured echo URL through it.
func (m *Manager) Verify(ctx context.Context) error {
	m.mu.Lock()
	addr := m.socksAddr
	m.mu.Unlock()

	if addr == "" {
		return ErrIdentityUnavailable
	}
	return m.verifyAddr(ctx, addr)
}

// Close stops any daemon this manager launched. Safe to call repeatedly.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	return nil
}

func (m *Manager) launchEmbedded(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(m.cfg.LaunchTimeout()),
	)
	if err != nil {
		return fmt.Errorf("tor launch config: %w", err)
	}

	proc, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("start embedded tor: %w", err)
	}
	if ctx.Err() != nil {
		proc.Stop() //nolint:errcheck
		return ctx.Err()
	}

	if err := m.verifyAddr(ctx, proc.SocksAddr()); err != nil {
		proc.Stop() //nolint:errcheck
		return fmt.Errorf("verify embedded tor: %w", err)
	}

	m.embedded = proc
	m.socksAddr = proc.SocksAddr()
	m.logger.Info("embedded tor daemon running", zap.String("addr", m.socksAddr))
	return nil
}

func (m *Manager) launchSystem(ctx context.Context) error {
	dataDir := m.cfg.FallbackDataDir
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "ads-crawler-tor")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create tor data dir: %w", err)
	}

	torrcPath := filepath.Join(dataDir, "torrc")
	if err := os.WriteFile(torrcPath, []byte(torrc(m.cfg.FallbackSocksPort, dataDir)), 0o600); err != nil {
		return fmt.Errorf("write torrc: %w", err)
	}

	binary := m.cfg.TorBinary
	if binary == "" {
		binary = "tor"
	}
	cmd := exec.Command(binary, "-f", torrcPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(m.cfg.FallbackSocksPort))
	deadline := time.Now().Add(m.cfg.LaunchTimeout())
	for time.Now().Before(deadline) {
		if err := m.verifyAddr(ctx, addr); err == nil {
			m.fallback = cmd
			m.socksAddr = addr
			m.logger.Info("system tor daemon running", zap.String("addr", addr))
			return nil
		}
		select {
		case <-ctx.Done():
			cmd.Process.Kill() //nolint:errcheck
			return ctx.Err()
		case <-time.After(m.cfg.PollInterval()):
		}
	}

	cmd.Process.Kill() //nolint:errcheck
	cmd.Wait()         //nolint:errcheck
	return fmt.Errorf("system tor did not come up within %s", m.cfg.LaunchTimeout())
}

func (m *Manager) verifyAddr(ctx context.Context, addr string) error {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return fmt.Errorf("socks dialer for %s: %w", addr, err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("socks dialer for %s does not support contexts", addr)
	}

	client := &http.Client{
		Transport: &http.Transport{DialContext: contextDialer.DialContext},
		Timeout:   m.cfg.VerifyTimeout(),
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.EchoURL, nil)
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("verify via %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("verify via %s: unexpected status %d", addr, resp.StatusCode)
	}
	return nil
}

func (m *Manager) teardownLocked() {
	if m.embedded != nil {
		if err := m.embedded.Stop(); err != nil {
			m.logger.Warn("stop embedded tor", zap.Error(err))
		}
		m.embedded = nil
	}
	if m.fallback != nil {
		if m.fallback.Process != nil {
			m.fallback.Process.Kill() //nolint:errcheck
		}
		m.fallback.Wait() //nolint:errcheck
		m.fallback = nil
	}
	m.socksAddr = ""
}

// torrc renders the minimal configuration for the system tor fallback.
func torrc(socksPort int, dataDir string) string {
	return fmt.Sprintf("SocksPort 127.0.0.1:%d\nDataDirectory %s\nControlPort 0\n", socksPort, dataDir)
}
