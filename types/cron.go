package types

import (
	"context"
	"time"
)

type CronManager interface {
	LifecycleManager
	AddJob(name, schedule string, job CronJob) error
	RemoveJob(name string) error
	Jobs() []string
}

type CronJob func(ctx context.Context) error

type JobEntry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"last_run"`
	Runs     uint64    `json:"runs"`
	Failures uint64    `json:"failures"`
}
