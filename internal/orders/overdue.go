package orders

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BaHoon/Careflow-sub002/pkg/config"
	"github.com/BaHoon/Careflow-sub002/pkg/interfaces"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/monitoring"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// OverdueSweeper periodically scans for pending tasks whose planned start
// time has passed its category tolerance, surfacing them in logs and metrics.
// The sweep never mutates task state; escalation stays a human decision.
type OverdueSweeper struct {
	tasks  interfaces.TaskRepository
	cfg    *config.SchedulingConfig
	logger *logger.Logger
	cron   *cron.Cron
}

// NewOverdueSweeper creates a new overdue sweeper
func NewOverdueSweeper(tasks interfaces.TaskRepository, cfg *config.SchedulingConfig, log *logger.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		tasks:  tasks,
		cfg:    cfg,
		logger: log,
	}
}

// Start schedules the sweep on the configured cron spec
func (o *OverdueSweeper) Start() error {
	o.cron = cron.New()
	if _, err := o.cron.AddFunc(o.cfg.OverdueSweepSpec, func() {
		o.Sweep(time.Now())
	}); err != nil {
		return err
	}

	o.cron.Start()
	o.logger.WithField("spec", o.cfg.OverdueSweepSpec).Info("Overdue sweep scheduled")
	return nil
}

// Stop stops the scheduled sweep
func (o *OverdueSweeper) Stop() {
	if o.cron != nil {
		o.cron.Stop()
	}
}

// Sweep runs one overdue scan across all task categories
func (o *OverdueSweeper) Sweep(now time.Time) {
	for category, toleranceMin := range o.cfg.OverdueToleranceMin {
		cat := types.TaskCategory(category)
		deadline := now.Add(-time.Duration(toleranceMin) * time.Minute)

		overdue, err := o.tasks.GetOverduePendingTasks(cat, deadline)
		if err != nil {
			o.logger.WithError(err).Errorf("Overdue sweep failed for category %s", category)
			continue
		}

		for _, task := range overdue {
			o.logger.WithFields(map[string]interface{}{
				"task_id":       task.ID,
				"order_id":      task.OrderID,
				"category":      task.Category,
				"planned_start": task.PlannedStartTime,
			}).Warn("Task overdue")
			monitoring.RecordOverdueTask(string(cat))
		}
	}
}
