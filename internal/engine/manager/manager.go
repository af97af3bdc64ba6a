package manager

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Runner is the work the manager schedules.
type Runner interface {
	RunCycle(ctx context.Context, now time.Time) (model.CycleReport, error)
	RunMaintenance(ctx context.Context, now time.Time) ([]string, error)
}

// Manager schedules processing cycles and partition maintenance. Neither job
// ever overlaps with a still running instance of itself; a failed run is logged
// and the next tick proceeds as usual.
type Manager struct {
	runner Runner
	cron   *cron.Cron
	clock  func() time.Time

	processJob     cron.Job
	maintenanceJob cron.Job

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewManager creates a manager that processes every cfg.Interval and runs
// maintenance on cfg.MaintenanceCron, a standard five-field cron expression.
func NewManager(runner Runner, cfg config.CollectorConfig) (*Manager, error) {
	if cfg.Interval <= 0 {
		return nil, xerrors.Errorf("processing interval must be positive, got %s", cfg.Interval)
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner: runner,
		cron:   c,
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	skip := cron.NewChain(cron.SkipIfStillRunning(logger))
	m.processJob = skip.Then(cron.FuncJob(m.process))
	m.maintenanceJob = skip.Then(cron.FuncJob(m.maintain))

	if _, err := c.AddJob("@every "+cfg.Interval.String(), m.processJob); err != nil {
		cancel()
		return nil, xerrors.Errorf("invalid processing interval: %w", err)
	}
	if _, err := c.AddJob(cfg.MaintenanceCron, m.maintenanceJob); err != nil {
		cancel()
		return nil, xerrors.Errorf("invalid maintenance schedule %q: %w", cfg.MaintenanceCron, err)
	}
	return m, nil
}

// Start runs maintenance once, so the current partitions exist before the first
// cycle, then starts the schedule.
func (m *Manager) Start() {
	m.maintenanceJob.Run()
	m.cron.Start()
	log.Printf("Manager started with %d scheduled jobs.", len(m.cron.Entries()))
}

// RunOnce runs maintenance and a single processing cycle synchronously.
func (m *Manager) RunOnce(ctx context.Context) error {
	if _, err := m.runner.RunMaintenance(ctx, m.clock()); err != nil {
		return err
	}
	_, err := m.runner.RunCycle(ctx, m.clock())
	return err
}

// Stop stops the schedule and waits for running jobs until ctx is done, after
// which their context is cancelled.
func (m *Manager) Stop(ctx context.Context) {
	log.Println("Manager stopping...")
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn("Shutdown deadline reached, cancelling running jobs.")
		m.once.Do(m.cancel)
		<-done.Done()
	}
	m.once.Do(m.cancel)
	log.Println("Manager stopped.")
}

func (m *Manager) process() {
	// Errors are already logged and counted by the runner.
	_, _ = m.runner.RunCycle(m.ctx, m.clock())
}

func (m *Manager) maintain() {
	created, err := m.runner.RunMaintenance(m.ctx, m.clock())
	if err != nil {
		log.Errorf("Partition maintenance failed: %v", err)
		return
	}
	if len(created) > 0 {
		log.Printf("Partition maintenance created %v", created)
	}
}
