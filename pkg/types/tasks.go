package types

import "time"

// TaskCategory governs the lifecycle shape of an execution task
type TaskCategory string

const (
	// CategoryImmediate completes on a single scan
	CategoryImmediate TaskCategory = "immediate"
	// CategoryDuration is a start/stop pair
	CategoryDuration TaskCategory = "duration"
	// CategoryResultPending starts, then requires a result to complete
	CategoryResultPending TaskCategory = "result_pending"
	// CategoryDataCollection is a single submission with payload
	CategoryDataCollection TaskCategory = "data_collection"
	// CategoryVerification is a checklist / multi-scan task
	CategoryVerification TaskCategory = "verification"
	// CategoryApplicationWithPrint carries a printable guide sheet
	CategoryApplicationWithPrint TaskCategory = "application_with_print"
	// CategoryDischargeConfirmation is the final discharge sign-off
	CategoryDischargeConfirmation TaskCategory = "discharge_confirmation"
)

// TaskStatus represents execution task states
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskDispensed  TaskStatus = "dispensed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	// TaskOrderStopping marks a task locked by a pending order stop
	TaskOrderStopping TaskStatus = "order_stopping"
)

// IsTerminal reports whether a task can no longer change state
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// PayloadItem is one named line inside a task payload (a drug to
// administer, a piece of equipment to verify, an education topic)
type PayloadItem struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// TaskPayload is the schema-on-write definition document written at task
// creation time. It fully describes what the caregiver must do, so no
// further order lookups are needed at execution time.
type TaskPayload struct {
	TaskType    string        `json:"task_type"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Checklist   []string      `json:"checklist,omitempty"`
	Items       []PayloadItem `json:"items,omitempty"`
}

// TaskResult is the structured outcome document written at completion
// for result-bearing task categories.
type TaskResult struct {
	Summary    string            `json:"summary"`
	Values     map[string]string `json:"values,omitempty"`
	ReportRef  string            `json:"report_ref,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// ExecutionTask is one scheduled unit of caregiver work derived from an order
type ExecutionTask struct {
	ID               int64        `json:"id" db:"id"`
	OrderID          int64        `json:"order_id" db:"order_id"`
	PatientID        int64        `json:"patient_id" db:"patient_id"`
	Category         TaskCategory `json:"category" db:"category"`
	Status           TaskStatus   `json:"status" db:"status"`
	PlannedStartTime time.Time    `json:"planned_start_time" db:"planned_start_time"`
	ActualStartTime  *time.Time   `json:"actual_start_time,omitempty" db:"actual_start_time"`
	ActualEndTime    *time.Time   `json:"actual_end_time,omitempty" db:"actual_end_time"`
	AssigneeNurseID  *int64       `json:"assignee_nurse_id,omitempty" db:"assignee_nurse_id"`
	ExecutorStaffID  *int64       `json:"executor_staff_id,omitempty" db:"executor_staff_id"`
	CompleterNurseID *int64       `json:"completer_nurse_id,omitempty" db:"completer_nurse_id"`
	IsRolledBack     bool         `json:"is_rolled_back" db:"is_rolled_back"`
	Data             TaskPayload  `json:"data" db:"data"`
	Result           *TaskResult  `json:"result,omitempty" db:"result"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// TaskLockRecord is one ledger entry recording a task's status before it
// was locked by an order stop, so a withdraw can restore it exactly.
type TaskLockRecord struct {
	ID          string     `json:"id" db:"id"`
	OrderID     int64      `json:"order_id" db:"order_id"`
	TaskID      int64      `json:"task_id" db:"task_id"`
	PriorStatus TaskStatus `json:"prior_status" db:"prior_status"`
	LockedAt    time.Time  `json:"locked_at" db:"locked_at"`
	Restored    bool       `json:"restored" db:"restored"`
	RestoredAt  *time.Time `json:"restored_at,omitempty" db:"restored_at"`
}

// OrderActionResult is the per-order outcome of a batch operation
type OrderActionResult struct {
	OrderID         int64 `json:"order_id"`
	TasksCreated    int   `json:"tasks_created"`
	TasksAssigned   int   `json:"tasks_assigned"`
	TasksUnassigned int   `json:"tasks_unassigned"`
}

// BatchResult reports a batch operation. Partial success is a supported
// outcome: failed order ids land in Errors without aborting the rest.
type BatchResult struct {
	Success bool                 `json:"success"`
	Results []*OrderActionResult `json:"results"`
	Errors  []string             `json:"errors,omitempty"`
}

// StopResult reports an order stop: which tasks were locked
type StopResult struct {
	OrderID       int64   `json:"order_id"`
	LockedTaskIDs []int64 `json:"locked_task_ids"`
}

// RestoreResult reports a stop withdraw/reject: the id -> restored-status
// mapping for the audit display
type RestoreResult struct {
	OrderID  int64                `json:"order_id"`
	Restored map[int64]TaskStatus `json:"restored"`
}

// BatchRestoreResult aggregates restore results over a batch of order ids
type BatchRestoreResult struct {
	Success bool             `json:"success"`
	Results []*RestoreResult `json:"results"`
	Errors  []string         `json:"errors,omitempty"`
}
