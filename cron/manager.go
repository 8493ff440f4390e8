// Package cron schedules background maintenance, primarily the sweep
// that removes dependency edges whose results are already gone.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
)

type jobRecord struct {
	entry   types.JobEntry
	entryID cron.EntryID
}

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*jobRecord
	mu              sync.RWMutex
	running         bool
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CronManager, error) {
	cronConfig := config.GetConfig().Cron

	timezone := time.UTC
	if cronConfig != nil && cronConfig.Timezone != "" {
		loc, err := time.LoadLocation(cronConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown timezone, falling back to UTC",
				zap.String("timezone", cronConfig.Timezone))
		} else {
			timezone = loc
		}
	}

	managerCtx, cancel := context.WithCancel(ctx)

	scheduler := cron.New(
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger{logger: logger})),
	)

	manager := &Manager{
		ctx:             managerCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		metrics:         metrics,
		cron:            scheduler,
		timezone:        timezone,
		jobs:            make(map[string]*jobRecord),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      10 * time.Minute,
	}

	return manager, nil
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return types.ErrServerAlreadyRunning
	}

	m.cron.Start()
	m.running = true

	m.logger.Info("Cron manager started",
		zap.String("timezone", m.timezone.String()),
		zap.Int("jobs", len(m.jobs)))
	return nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return types.ErrServerNotRunning
	}

	stopCtx := m.cron.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron manager stopped gracefully")
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, jobs may still be running")
	}

	m.running = false
	m.cancel()
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) AddJob(name, schedule string, job types.CronJob) error {
	if name == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return types.ErrCronJobExists
	}

	entryID, err := m.cron.AddFunc(schedule, m.wrapJob(name, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "schedule: %s", schedule)
	}

	m.jobs[name] = &jobRecord{
		entry: types.JobEntry{
			Name:     name,
			Schedule: schedule,
		},
		entryID: entryID,
	}

	m.logger.Info("Cron job added",
		zap.String("job_name", name),
		zap.String("schedule", schedule))

	return nil
}

func (m *Manager) RemoveJob(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.jobs[name]
	if !exists {
		return types.ErrCronJobNotFound
	}

	m.cron.Remove(record.entryID)
	delete(m.jobs, name)

	m.logger.Info("Cron job removed", zap.String("job_name", name))
	return nil
}

func (m *Manager) Jobs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	return names
}

func (m *Manager) wrapJob(name string, job types.CronJob) func() {
	return func() {
		start := time.Now()

		m.logger.Debug("Cron job started", zap.String("job_name", name))

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		err := func() (jobErr error) {
			defer func() {
				if r := recover(); r != nil {
					jobErr = types.NewErrorf("job panic: %v", r)
				}
			}()
			return job(jobCtx)
		}()

		duration := time.Since(start)

		m.updateStats(name, start, err)
		m.observeRun(name, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", name),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Info("Cron job completed",
				zap.String("job_name", name),
				zap.Duration("duration", duration))
		}
	}
}

func (m *Manager) updateStats(name string, start time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.jobs[name]
	if !exists {
		return
	}

	record.entry.LastRun = start
	record.entry.Runs++
	if err != nil {
		record.entry.Failures++
	}
}

func (m *Manager) observeRun(name string, duration time.Duration, err error) {
	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": name,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1, 10, 60, 300},
		map[string]string{"job_name": name},
	).Observe(duration.Seconds())
}

// cronLogger adapts our logger to the scheduler's recovery chain.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(toFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
