package orders

import (
	"fmt"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/interfaces"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/monitoring"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
	"github.com/google/uuid"
)

// StopLockCoordinator implements the stop-after-task locking protocol and
// its inverse. The lock ledger records each task's pre-lock status so a
// withdraw can restore it exactly.
type StopLockCoordinator struct {
	tasks  interfaces.TaskRepository
	logger *logger.Logger
}

// NewStopLockCoordinator creates a new stop/rollback coordinator
func NewStopLockCoordinator(tasks interfaces.TaskRepository, log *logger.Logger) *StopLockCoordinator {
	return &StopLockCoordinator{
		tasks:  tasks,
		logger: log,
	}
}

// Lock records the current status of every non-terminal task scheduled
// strictly after the stop-after task and overwrites it with the
// order-stopping marker. The stop-after task itself and earlier tasks are
// untouched.
func (c *StopLockCoordinator) Lock(orderID, stopAfterTaskID int64) ([]int64, error) {
	all, err := c.tasks.GetTasksByOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks for order %d: %w", orderID, err)
	}

	var pivot *types.ExecutionTask
	for _, task := range all {
		if task.ID == stopAfterTaskID {
			pivot = task
			break
		}
	}
	if pivot == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("stop-after task %d not found on order %d", stopAfterTaskID, orderID))
	}

	now := time.Now()
	var records []*types.TaskLockRecord
	var lockedIDs []int64
	for _, task := range all {
		if !task.PlannedStartTime.After(pivot.PlannedStartTime) {
			continue
		}
		if task.Status.IsTerminal() || task.Status == types.TaskOrderStopping {
			continue
		}
		records = append(records, &types.TaskLockRecord{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			TaskID:      task.ID,
			PriorStatus: task.Status,
			LockedAt:    now,
		})
		lockedIDs = append(lockedIDs, task.ID)
	}

	if len(records) == 0 {
		return nil, nil
	}

	if err := c.tasks.CreateLockRecords(records); err != nil {
		return nil, fmt.Errorf("failed to write lock ledger for order %d: %w", orderID, err)
	}

	for _, record := range records {
		updates := map[string]interface{}{
			"status":         string(types.TaskOrderStopping),
			"is_rolled_back": true,
		}
		if err := c.tasks.UpdateTask(record.TaskID, updates); err != nil {
			return nil, fmt.Errorf("failed to lock task %d: %w", record.TaskID, err)
		}
	}

	monitoring.RecordTaskLock("lock", len(records))
	c.logger.WithOrderID(orderID).WithField("locked", len(records)).Info("Locked tasks for order stop")
	return lockedIDs, nil
}

// Restore writes each ledger entry's recorded pre-lock status back to its
// task and clears the order-stopping marker. Restoring an already restored
// order is a no-op, not an error.
func (c *StopLockCoordinator) Restore(orderID int64) (map[int64]types.TaskStatus, error) {
	records, err := c.tasks.GetActiveLockRecords(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lock ledger for order %d: %w", orderID, err)
	}

	restored := make(map[int64]types.TaskStatus)
	if len(records) == 0 {
		return restored, nil
	}

	for _, record := range records {
		updates := map[string]interface{}{
			"status":         string(record.PriorStatus),
			"is_rolled_back": false,
		}
		if err := c.tasks.UpdateTask(record.TaskID, updates); err != nil {
			return nil, fmt.Errorf("failed to restore task %d: %w", record.TaskID, err)
		}
		restored[record.TaskID] = record.PriorStatus
	}

	if err := c.tasks.MarkLocksRestored(orderID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to close lock ledger for order %d: %w", orderID, err)
	}

	monitoring.RecordTaskLock("restore", len(records))
	c.logger.WithOrderID(orderID).WithField("restored", len(records)).Info("Restored tasks after stop withdraw")
	return restored, nil
}
