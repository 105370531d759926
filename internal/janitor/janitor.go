// Package janitor purges soft-deleted rows once they age past the retention
// window. Deletes across the portal are soft so administrators can be talked
// out of mistakes; the janitor is what eventually makes them real.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/maquiflow/fleet-portal/internal/repository"
)

// Janitor runs the nightly purge.
type Janitor struct {
	identities    *repository.IdentityRepo
	machineTypes  *repository.MachineTypeRepo
	machines      *repository.MachineRepo
	retentionDays int
	log           *zap.Logger
	cron          *cron.Cron
}

func New(ids *repository.IdentityRepo, mts *repository.MachineTypeRepo, ms *repository.MachineRepo, retentionDays int, log *zap.Logger) *Janitor {
	return &Janitor{
		identities:    ids,
		machineTypes:  mts,
		machines:      ms,
		retentionDays: retentionDays,
		log:           log,
	}
}

// Start schedules the purge at 03:10 every day and returns immediately.
// A non-positive retention disables the janitor entirely.
func (j *Janitor) Start() {
	if j.retentionDays <= 0 {
		j.log.Info("janitor disabled", zap.Int("retention_days", j.retentionDays))
		return
	}
	j.cron = cron.New()
	_, err := j.cron.AddFunc("10 3 * * *", func() { j.RunOnce(context.Background()) })
	if err != nil {
		j.log.Error("janitor schedule failed", zap.Error(err))
		return
	}
	j.cron.Start()
	j.log.Info("janitor scheduled", zap.Int("retention_days", j.retentionDays))
}

// Stop halts the schedule and waits for a running purge to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// RunOnce purges every table once. Exported so operators can trigger it from
// tests or a maintenance shell without waiting for the schedule.
func (j *Janitor) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	j.log.Info("janitor purge starting", zap.Time("cutoff", cutoff))

	if n, err := j.machines.PurgeDeletedBefore(ctx, cutoff); err != nil {
		j.log.Error("purge machines failed", zap.Error(err))
	} else if n > 0 {
		j.log.Info("purged machines", zap.Int64("rows", n))
	}
	if n, err := j.machineTypes.PurgeDeletedBefore(ctx, cutoff); err != nil {
		j.log.Error("purge machine types failed", zap.Error(err))
	} else if n > 0 {
		j.log.Info("purged machine types", zap.Int64("rows", n))
	}
	if n, err := j.identities.PurgeDeletedBefore(ctx, cutoff); err != nil {
		j.log.Error("purge identities failed", zap.Error(err))
	} else if n > 0 {
		j.log.Info("purged identities", zap.Int64("rows", n))
	}
}
