// Package health re-verifies the audit trail in the background and reports
// whether the ledger is fit to serve.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
)

// States reported by Monitor.
const (
	StateUnknown  = "unknown"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
)

// Config holds monitor configuration.
type Config struct {
	CheckInterval time.Duration
	// FailThreshold is how many consecutive verification errors (store
	// unreachable, query failed) flip the state to degraded. A chain that
	// verifies as broken degrades immediately.
	FailThreshold int
}

// Verifier is the part of ledger.Ledger the monitor needs.
type Verifier interface {
	Verify(ctx context.Context) (*ledger.Report, error)
}

// Status is a snapshot of the monitor's view.
type Status struct {
	State               string         `json:"state"`
	LastCheck           time.Time      `json:"last_check,omitzero"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	Report              *ledger.Report `json:"report,omitempty"`
	Error               string         `json:"error,omitempty"`
}

// DegradedFunc is called once per healthy→degraded transition.
type DegradedFunc func(ctx context.Context, st Status)

// MetricsRecordFunc is called after every completed verification.
type MetricsRecordFunc func(valid bool)

// Monitor periodically verifies the audit trail.
type Monitor struct {
	verifier   Verifier
	cfg        Config
	onDegraded DegradedFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a Monitor. Zero config fields take defaults: a check every
// five minutes and degradation after three consecutive errors.
func New(v Verifier, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Monitor{
		verifier: v,
		cfg:      cfg,
		logger:   logger,
		status:   Status{State: StateUnknown},
	}
}

// SetDegraded configures the degradation callback.
func (m *Monitor) SetDegraded(fn DegradedFunc) { m.onDegraded = fn }

// SetMetricsRecord configures the metrics callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) { m.onMetrics = fn }

// Start checks once immediately, then every CheckInterval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	timeout := m.cfg.CheckInterval - time.Second
	if timeout <= 0 {
		timeout = m.cfg.CheckInterval
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	m.Check(checkCtx)
}

// Check runs one verification, updates the state and returns it.
func (m *Monitor) Check(ctx context.Context) Status {
	report, err := m.verifier.Verify(ctx)
	now := time.Now().UTC()

	m.mu.Lock()
	prev := m.status.State
	st := Status{
		State:               prev,
		LastCheck:           now,
		ConsecutiveFailures: m.status.ConsecutiveFailures,
		Report:              m.status.Report,
	}
	switch {
	case err != nil:
		st.ConsecutiveFailures++
		st.Error = err.Error()
		if st.ConsecutiveFailures >= m.cfg.FailThreshold {
			st.State = StateDegraded
		}
	case !report.Valid:
		st.ConsecutiveFailures++
		st.Report = report
		st.State = StateDegraded
	default:
		st.ConsecutiveFailures = 0
		st.Report = report
		st.State = StateHealthy
	}
	m.status = st
	m.mu.Unlock()

	if err == nil && m.onMetrics != nil {
		m.onMetrics(report.Valid)
	}

	switch {
	case st.State == StateDegraded && prev != StateDegraded:
		fields := []zap.Field{zap.Int("consecutive_failures", st.ConsecutiveFailures)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int64("broken_seq", report.BrokenSeq), zap.String("reason", report.Message))
		}
		m.logger.Error("audit trail degraded", fields...)
		if m.onDegraded != nil {
			m.onDegraded(ctx, st)
		}
	case st.State == StateHealthy && prev == StateDegraded:
		m.logger.Info("audit trail recovered", zap.Int("entries", report.TotalEntries))
	case err != nil:
		m.logger.Warn("audit trail verification failed", zap.Error(err),
			zap.Int("consecutive_failures", st.ConsecutiveFailures))
	}
	return st
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
