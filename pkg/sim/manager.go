package sim

import (
	"fmt"
	"sync"

	"github.com/zerodha/logf"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/gate"
	"github.com/venlab/physgate/pkg/postsim"
	"github.com/venlab/physgate/pkg/trace"
)

// ManagerStatus represents the status of the pipeline manager.
type ManagerStatus string

const (
	StatusIdle         ManagerStatus = "idle"
	StatusInitializing ManagerStatus = "initializing"
	StatusRunning      ManagerStatus = "running"
	StatusCompleted    ManagerStatus = "completed"
	StatusFailed       ManagerStatus = "failed"
)

// Manager runs the full pipeline for one contract: decode, Pre-Sim
// Gate, simulate, Post-Sim Gate. Each manager owns exactly one run.
type Manager struct {
	log  logf.Logger
	opts Options

	mu     sync.Mutex
	status ManagerStatus

	contract   *contract.Contract
	gateReport *gate.Report
	trace      *trace.Trace
	acceptance *postsim.Report
}

// NewManager creates an idle pipeline manager.
func NewManager(log logf.Logger, opts Options) *Manager {
	return &Manager{log: log, opts: opts, status: StatusIdle}
}

// Initialize decodes the contract payload and runs the Pre-Sim Gate.
// A gate failure is fatal for the pipeline and carries the full report.
func (m *Manager) Initialize(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusInitializing

	c, err := contract.Decode(payload)
	if err != nil {
		m.status = StatusFailed
		return fmt.Errorf("failed to decode contract: %w", err)
	}

	report, err := gate.Assert(c)
	m.gateReport = report
	if err != nil {
		m.status = StatusFailed
		m.log.Error("pre-sim gate rejected contract", "errors", len(report.Errors), "score", report.Score)
		return err
	}
	for _, w := range report.Warnings {
		m.log.Warn("pre-sim gate warning", "msg", w)
	}

	m.contract = c
	m.status = StatusIdle // ready to run
	return nil
}

// Run simulates the contract and applies the Post-Sim Gate. The trace
// is retained even when acceptance fails; only internal simulator
// failures mark the manager failed.
func (m *Manager) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contract == nil {
		return fmt.Errorf("manager not initialized")
	}
	m.status = StatusRunning

	tr, err := New(m.contract, m.log, m.opts).Run()
	m.trace = tr
	if err != nil {
		m.status = StatusFailed
		return err
	}

	m.acceptance = postsim.Acceptance(tr, m.contract)
	m.status = StatusCompleted
	m.log.Info("pipeline completed", "end_reason", string(tr.EndReason),
		"accepted", m.acceptance.Success, "score", m.acceptance.Score)
	return nil
}

// GetStatus returns the manager lifecycle status.
func (m *Manager) GetStatus() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// GateReport returns the Pre-Sim Gate report, if any.
func (m *Manager) GateReport() *gate.Report { return m.gateReport }

// Trace returns the simulation trace, if any.
func (m *Manager) Trace() *trace.Trace { return m.trace }

// Acceptance returns the Post-Sim Gate report, if any.
func (m *Manager) Acceptance() *postsim.Report { return m.acceptance }
