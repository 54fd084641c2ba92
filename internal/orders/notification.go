package orders

import (
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// LogNotifier delivers task and stop notifications through the structured
// log. A message-queue delivery can replace it behind the same interface.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a new log-backed notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// NotifyTasksAssigned notifies a nurse about newly assigned tasks
func (n *LogNotifier) NotifyTasksAssigned(nurseID int64, tasks []*types.ExecutionTask) error {
	taskIDs := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		taskIDs = append(taskIDs, task.ID)
	}

	n.logger.WithFields(map[string]interface{}{
		"nurse_id": nurseID,
		"task_ids": taskIDs,
	}).Info("Tasks assigned")
	return nil
}

// NotifyOrderStopped notifies about an order entering the stop protocol
func (n *LogNotifier) NotifyOrderStopped(orderID int64, lockedTaskIDs []int64) error {
	n.logger.WithFields(map[string]interface{}{
		"order_id":        orderID,
		"locked_task_ids": lockedTaskIDs,
	}).Info("Order stop requested, downstream tasks locked")
	return nil
}

// NotifyStopWithdrawn notifies about a stop being withdrawn or rejected
func (n *LogNotifier) NotifyStopWithdrawn(orderID int64, restored map[int64]types.TaskStatus) error {
	n.logger.WithFields(map[string]interface{}{
		"order_id":       orderID,
		"restored_tasks": len(restored),
	}).Info("Order stop withdrawn, locked tasks restored")
	return nil
}
