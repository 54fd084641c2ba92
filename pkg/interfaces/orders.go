package interfaces

import (
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// OrderService defines the interface for the order-to-task scheduling and
// lifecycle engine
type OrderService interface {
	// Acknowledgement of new orders (batch, per-id error isolation)
	AcknowledgeOrders(actor types.Actor, orderIDs []int64) (*types.BatchResult, error)
	RejectOrders(actor types.Actor, orderIDs []int64, reason string) (*types.BatchResult, error)

	// Stop protocol
	StopOrder(actor types.Actor, orderID int64, reason string, stopAfterTaskID int64) (*types.StopResult, error)
	AcknowledgeStops(actor types.Actor, orderIDs []int64) (*types.BatchResult, error)
	WithdrawStop(actor types.Actor, orderID int64, reason string) (*types.RestoreResult, error)
	RejectStop(actor types.Actor, orderIDs []int64, reason string) (*types.BatchRestoreResult, error)

	// Terminal transitions
	CancelOrder(actor types.Actor, orderID int64, reason string) error
	CompleteOrder(actor types.Actor, orderID int64) error

	// Report attachment hook for inspection orders
	AttachInspectionReport(orderID int64, reportRef string) (*types.ExecutionTask, error)

	// Task execution
	StartTask(actor types.Actor, taskID int64) (*types.ExecutionTask, error)
	DispenseTask(actor types.Actor, taskID int64) (*types.ExecutionTask, error)
	CompleteTask(actor types.Actor, taskID int64, result *types.TaskResult) (*types.ExecutionTask, error)

	// Queries
	GetOrderTasks(orderID int64) ([]*types.ExecutionTask, error)
	GetStatusHistory(orderID int64) ([]*types.StatusHistoryRecord, error)

	// Service management
	Start(addr string) error
	Stop() error
}

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	GetOrderByID(id int64) (*types.Order, error)
	UpdateOrder(id int64, updates map[string]interface{}) error
	AppendStatusHistory(record *types.StatusHistoryRecord) error
	GetStatusHistory(orderID int64) ([]*types.StatusHistoryRecord, error)
}

// TaskRepository defines the interface for execution task persistence.
// CreateTasks persists a whole per-order batch in one transaction.
type TaskRepository interface {
	CreateTasks(tasks []*types.ExecutionTask) error
	GetTaskByID(id int64) (*types.ExecutionTask, error)
	GetTasksByOrder(orderID int64) ([]*types.ExecutionTask, error)
	UpdateTask(id int64, updates map[string]interface{}) error
	SetTaskResult(id int64, result *types.TaskResult) error
	GetOverduePendingTasks(category types.TaskCategory, before time.Time) ([]*types.ExecutionTask, error)

	// Stop-lock ledger
	CreateLockRecords(records []*types.TaskLockRecord) error
	GetActiveLockRecords(orderID int64) ([]*types.TaskLockRecord, error)
	MarkLocksRestored(orderID int64, restoredAt time.Time) error
}

// RosterRepository defines read access to the duty roster. The roster is
// written by an external scheduling admin function; this engine only reads.
type RosterRepository interface {
	GetScheduledEntries(careUnitID int64, date time.Time) ([]*types.DutyRosterEntry, error)
}

// DrugCatalog resolves drug ids to display names (read-only reference data)
type DrugCatalog interface {
	DrugName(id int64) (string, error)
}

// TaskNotifier delivers task assignment and stop/restore notifications to
// nursing staff
type TaskNotifier interface {
	NotifyTasksAssigned(nurseID int64, tasks []*types.ExecutionTask) error
	NotifyOrderStopped(orderID int64, lockedTaskIDs []int64) error
	NotifyStopWithdrawn(orderID int64, restored map[int64]types.TaskStatus) error
}
