package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
	"github.com/nerrad567/tapowatt/internal/process"
)

// Timeouts and intervals for backend supervision.
const (
	// readyPollInterval is how often the readiness probe retries.
	readyPollInterval = 100 * time.Millisecond

	// probeTimeout bounds a single health probe request.
	probeTimeout = 500 * time.Millisecond
)

// Logger defines the logging interface for the backend manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises the tapo-rest process and gates startup on an
// explicit readiness probe against its health endpoint. When the
// backend is unmanaged, only the probe is performed; the process is
// expected to run externally.
type Manager struct {
	config  config.BackendConfig
	apiURL  string
	probe   *resty.Client
	process *process.Manager
	logger  Logger
}

// NewManager creates a backend manager. apiURL is the resolved backend
// base URL (from the credentials file or config override).
func NewManager(cfg config.BackendConfig, apiURL string) *Manager {
	return &Manager{
		config: cfg,
		apiURL: strings.TrimRight(apiURL, "/"),
		probe: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(probeTimeout),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// APIURL returns the backend base URL.
func (m *Manager) APIURL() string {
	return m.apiURL
}

// Start launches the backend process (when managed) and blocks until
// the health endpoint answers or the readiness timeout expires.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("backend management disabled, expecting external tapo-rest", "api_url", m.apiURL)
		return m.WaitForReady(ctx)
	}

	m.logger.Info("starting tapo-rest",
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	var env []string
	if m.config.Username != "" {
		env = append(env,
			"TAPO_USERNAME="+m.config.Username,
			"TAPO_PASSWORD="+m.config.Password,
		)
	}

	procConfig := process.Config{
		Name:               "tapo-rest",
		Binary:             m.config.Binary,
		Args:               m.config.Args,
		Env:                env,
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.GetRestartDelay(),
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		OnStart: func() {
			m.logger.Info("tapo-rest process started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("tapo-rest process stopped", "error", err)
			} else {
				m.logger.Info("tapo-rest process stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("tapo-rest restarting", "attempt", attempt)
		},
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting tapo-rest: %w", err)
	}

	if err := m.WaitForReady(ctx); err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping tapo-rest after failed readiness check", "error", stopErr)
		}
		return err
	}

	m.logger.Info("tapo-rest ready", "api_url", m.apiURL)
	return nil
}

// WaitForReady polls the backend health endpoint until it answers with
// a success status, bounded by the configured readiness timeout.
func (m *Manager) WaitForReady(ctx context.Context) error {
	healthURL := m.HealthURL()
	deadline := time.Now().Add(m.config.GetReadyTimeout())

	m.logger.Debug("waiting for backend to be ready", "url", healthURL)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for backend: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: no response from %s after %v", ErrNotReady, healthURL, m.config.GetReadyTimeout())
		}

		// A managed process that already died will never become ready.
		if m.process != nil && !m.process.IsRunning() {
			if lastErr := m.process.LastError(); lastErr != nil {
				return fmt.Errorf("tapo-rest process exited: %w", lastErr)
			}
			return errors.New("tapo-rest process exited unexpectedly")
		}

		if err := m.HealthCheck(ctx); err == nil {
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// HealthCheck probes the backend health endpoint once.
func (m *Manager) HealthCheck(ctx context.Context) error {
	resp, err := m.probe.R().SetContext(ctx).Get(m.config.HealthPath)
	if err != nil {
		return &HealthError{Recoverable: true, Err: err}
	}
	if resp.IsError() {
		return &HealthError{Recoverable: true, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
	return nil
}

// HealthURL returns the full URL of the backend health endpoint.
func (m *Manager) HealthURL() string {
	return m.apiURL + m.config.HealthPath
}

// Stop gracefully stops the backend process.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}
	m.logger.Info("stopping tapo-rest")
	return m.process.Stop()
}

// IsRunning reports whether the backend process is running. An
// unmanaged backend is assumed to be running.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed {
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsManaged reports whether this manager controls the backend process.
func (m *Manager) IsManaged() bool {
	return m.config.Managed
}

// Stats holds statistics about the backend process.
type Stats struct {
	Managed      bool          `json:"managed"`
	Status       string        `json:"status"`
	APIURL       string        `json:"api_url"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the backend.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Managed: m.config.Managed,
		APIURL:  m.apiURL,
	}

	switch {
	case m.process != nil:
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	case !m.config.Managed:
		stats.Status = "external"
	default:
		stats.Status = "stopped"
	}

	return stats
}
