package orders

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/database"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// Repository implements the OrderRepository, TaskRepository and
// RosterRepository interfaces, plus the drug catalog lookup, over PostgreSQL
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new order engine repository
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// GetOrderByID retrieves an order by ID, including its kind-specific details
func (r *Repository) GetOrderByID(id int64) (*types.Order, error) {
	query := `
		SELECT id, kind, patient_id, physician_id, nurse_id, care_unit_id,
			   is_long_term, status, created_at, planned_end_time, actual_end_time, details
		FROM orders
		WHERE id = $1`

	order := &types.Order{}
	var nurseID sql.NullInt64
	var actualEnd sql.NullTime
	var detailsRaw []byte

	err := r.db.QueryRow(query, id).Scan(
		&order.ID,
		&order.Kind,
		&order.PatientID,
		&order.PhysicianID,
		&nurseID,
		&order.CareUnitID,
		&order.IsLongTerm,
		&order.Status,
		&order.CreatedAt,
		&order.PlannedEndTime,
		&actualEnd,
		&detailsRaw,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("order not found: %d", id))
		}
		r.logger.WithError(err).Errorf("Failed to get order %d", id)
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if nurseID.Valid {
		order.NurseID = &nurseID.Int64
	}
	if actualEnd.Valid {
		order.ActualEndTime = &actualEnd.Time
	}
	if err := unmarshalOrderDetails(order, detailsRaw); err != nil {
		return nil, fmt.Errorf("failed to decode details of order %d: %w", id, err)
	}

	return order, nil
}

// unmarshalOrderDetails decodes the kind-specific details document into the
// matching detail pointer
func unmarshalOrderDetails(order *types.Order, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	switch order.Kind {
	case types.KindMedication:
		order.Medication = &types.MedicationDetails{}
		return json.Unmarshal(raw, order.Medication)
	case types.KindSurgical:
		order.Surgical = &types.SurgicalDetails{}
		return json.Unmarshal(raw, order.Surgical)
	case types.KindInspection:
		order.Inspection = &types.InspectionDetails{}
		return json.Unmarshal(raw, order.Inspection)
	case types.KindOperation:
		order.Operation = &types.OperationDetails{}
		return json.Unmarshal(raw, order.Operation)
	case types.KindDischarge:
		order.Discharge = &types.DischargeDetails{}
		return json.Unmarshal(raw, order.Discharge)
	}
	return nil
}

// UpdateOrder updates an existing order using a dynamic SET clause
func (r *Repository) UpdateOrder(id int64, updates map[string]interface{}) error {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	for field, value := range updates {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argIndex))
		args = append(args, value)
		argIndex++
	}

	if len(setParts) == 0 {
		return fmt.Errorf("no updates provided")
	}

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d", strings.Join(setParts, ", "), argIndex)
	args = append(args, id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to update order %d", id)
		return fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("order not found: %d", id))
	}

	return nil
}

// AppendStatusHistory inserts one immutable status history record. The
// history table is append-only; there is no update path.
func (r *Repository) AppendStatusHistory(record *types.StatusHistoryRecord) error {
	query := `
		INSERT INTO order_status_history (
			id, order_id, from_status, to_status, actor_id, actor_type, actor_name, reason, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		record.ID,
		record.OrderID,
		record.FromStatus,
		record.ToStatus,
		record.ActorID,
		record.ActorType,
		record.ActorName,
		record.Reason,
		record.RecordedAt,
	)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to append status history for order %d", record.OrderID)
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return nil
}

// GetStatusHistory retrieves an order's status history in recorded order
func (r *Repository) GetStatusHistory(orderID int64) ([]*types.StatusHistoryRecord, error) {
	query := `
		SELECT id, order_id, from_status, to_status, actor_id, actor_type, actor_name, reason, recorded_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY recorded_at ASC`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to get status history for order %d", orderID)
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var records []*types.StatusHistoryRecord
	for rows.Next() {
		record := &types.StatusHistoryRecord{}
		err := rows.Scan(
			&record.ID,
			&record.OrderID,
			&record.FromStatus,
			&record.ToStatus,
			&record.ActorID,
			&record.ActorType,
			&record.ActorName,
			&record.Reason,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status history record: %w", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}

	return records, nil
}

// CreateTasks persists a per-order batch of execution tasks in one
// transaction, assigning the generated ids back onto the drafts
func (r *Repository) CreateTasks(tasks []*types.ExecutionTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO execution_tasks (
			order_id, patient_id, category, status, planned_start_time,
			assignee_nurse_id, is_rolled_back, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	for _, task := range tasks {
		dataRaw, err := json.Marshal(task.Data)
		if err != nil {
			return fmt.Errorf("failed to encode task payload: %w", err)
		}

		err = tx.QueryRow(query,
			task.OrderID,
			task.PatientID,
			task.Category,
			task.Status,
			task.PlannedStartTime,
			nullableID(task.AssigneeNurseID),
			task.IsRolledBack,
			dataRaw,
			task.CreatedAt,
			task.UpdatedAt,
		).Scan(&task.ID)
		if err != nil {
			r.logger.WithError(err).Errorf("Failed to create task for order %d", task.OrderID)
			return fmt.Errorf("failed to create task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task batch: %w", err)
	}

	return nil
}

// GetTaskByID retrieves an execution task by ID
func (r *Repository) GetTaskByID(id int64) (*types.ExecutionTask, error) {
	query := taskSelect + ` WHERE id = $1`

	row := r.db.QueryRow(query, id)
	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("task not found: %d", id))
		}
		r.logger.WithError(err).Errorf("Failed to get task %d", id)
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// GetTasksByOrder retrieves all tasks of an order ordered by planned time
func (r *Repository) GetTasksByOrder(orderID int64) ([]*types.ExecutionTask, error) {
	query := taskSelect + ` WHERE order_id = $1 ORDER BY planned_start_time ASC, id ASC`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to get tasks for order %d", orderID)
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.ExecutionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task using a dynamic SET clause
func (r *Repository) UpdateTask(id int64, updates map[string]interface{}) error {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	for field, value := range updates {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argIndex))
		args = append(args, value)
		argIndex++
	}

	if len(setParts) == 0 {
		return fmt.Errorf("no updates provided")
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now())
	argIndex++

	query := fmt.Sprintf("UPDATE execution_tasks SET %s WHERE id = $%d", strings.Join(setParts, ", "), argIndex)
	args = append(args, id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to update task %d", id)
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("task not found: %d", id))
	}

	return nil
}

// SetTaskResult writes the structured outcome document of a completed task
func (r *Repository) SetTaskResult(id int64, result *types.TaskResult) error {
	resultRaw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `UPDATE execution_tasks SET result = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.Exec(query, resultRaw, time.Now(), id)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to set result for task %d", id)
		return fmt.Errorf("failed to set task result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("task not found: %d", id))
	}

	return nil
}

// GetOverduePendingTasks lists pending tasks of a category planned before
// the given deadline
func (r *Repository) GetOverduePendingTasks(category types.TaskCategory, before time.Time) ([]*types.ExecutionTask, error) {
	query := taskSelect + `
		WHERE status = $1 AND category = $2 AND planned_start_time < $3
		ORDER BY planned_start_time ASC`

	rows, err := r.db.Query(query, types.TaskPending, category, before)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get overdue tasks")
		return nil, fmt.Errorf("failed to get overdue tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.ExecutionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdue task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overdue tasks: %w", err)
	}

	return tasks, nil
}

// CreateLockRecords inserts stop-lock ledger entries in one transaction
func (r *Repository) CreateLockRecords(records []*types.TaskLockRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO task_lock_ledger (id, order_id, task_id, prior_status, locked_at, restored)
		VALUES ($1, $2, $3, $4, $5, false)`

	for _, record := range records {
		if _, err := tx.Exec(query, record.ID, record.OrderID, record.TaskID, record.PriorStatus, record.LockedAt); err != nil {
			r.logger.WithError(err).Errorf("Failed to create lock record for task %d", record.TaskID)
			return fmt.Errorf("failed to create lock record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lock ledger: %w", err)
	}

	return nil
}

// GetActiveLockRecords retrieves the not-yet-restored ledger entries of an order
func (r *Repository) GetActiveLockRecords(orderID int64) ([]*types.TaskLockRecord, error) {
	query := `
		SELECT id, order_id, task_id, prior_status, locked_at, restored, restored_at
		FROM task_lock_ledger
		WHERE order_id = $1 AND restored = false
		ORDER BY task_id ASC`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to get lock records for order %d", orderID)
		return nil, fmt.Errorf("failed to get lock records: %w", err)
	}
	defer rows.Close()

	var records []*types.TaskLockRecord
	for rows.Next() {
		record := &types.TaskLockRecord{}
		var restoredAt sql.NullTime
		err := rows.Scan(
			&record.ID,
			&record.OrderID,
			&record.TaskID,
			&record.PriorStatus,
			&record.LockedAt,
			&record.Restored,
			&restoredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock record: %w", err)
		}
		if restoredAt.Valid {
			record.RestoredAt = &restoredAt.Time
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lock records: %w", err)
	}

	return records, nil
}

// MarkLocksRestored closes all active ledger entries of an order
func (r *Repository) MarkLocksRestored(orderID int64, restoredAt time.Time) error {
	query := `UPDATE task_lock_ledger SET restored = true, restored_at = $1 WHERE order_id = $2 AND restored = false`

	if _, err := r.db.Exec(query, restoredAt, orderID); err != nil {
		r.logger.WithError(err).Errorf("Failed to mark locks restored for order %d", orderID)
		return fmt.Errorf("failed to mark locks restored: %w", err)
	}

	return nil
}

// GetScheduledEntries retrieves the scheduled duty roster entries of a care
// unit for a work date
func (r *Repository) GetScheduledEntries(careUnitID int64, date time.Time) ([]*types.DutyRosterEntry, error) {
	query := `
		SELECT id, staff_id, care_unit_id, work_date, shift_start, shift_end, status
		FROM duty_roster
		WHERE care_unit_id = $1 AND work_date = $2 AND status = $3`

	rows, err := r.db.Query(query, careUnitID, date, types.RosterScheduled)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to get roster for care unit %d", careUnitID)
		return nil, fmt.Errorf("failed to get roster entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.DutyRosterEntry
	for rows.Next() {
		entry := &types.DutyRosterEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.StaffID,
			&entry.CareUnitID,
			&entry.WorkDate,
			&entry.ShiftStart,
			&entry.ShiftEnd,
			&entry.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster entries: %w", err)
	}

	return entries, nil
}

// DrugName resolves a drug id to its display name from the drug catalog
func (r *Repository) DrugName(id int64) (string, error) {
	query := `SELECT name FROM drugs WHERE id = $1`

	var name string
	if err := r.db.QueryRow(query, id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return "", types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("drug not found: %d", id))
		}
		return "", fmt.Errorf("failed to look up drug %d: %w", id, err)
	}

	return name, nil
}

const taskSelect = `
	SELECT id, order_id, patient_id, category, status, planned_start_time,
		   actual_start_time, actual_end_time, assignee_nurse_id,
		   executor_staff_id, completer_nurse_id, is_rolled_back,
		   data, result, created_at, updated_at
	FROM execution_tasks`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask scans one execution task row, decoding payload documents
func scanTask(row rowScanner) (*types.ExecutionTask, error) {
	task := &types.ExecutionTask{}
	var actualStart, actualEnd sql.NullTime
	var assignee, executor, completer sql.NullInt64
	var dataRaw, resultRaw []byte

	err := row.Scan(
		&task.ID,
		&task.OrderID,
		&task.PatientID,
		&task.Category,
		&task.Status,
		&task.PlannedStartTime,
		&actualStart,
		&actualEnd,
		&assignee,
		&executor,
		&completer,
		&task.IsRolledBack,
		&dataRaw,
		&resultRaw,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actualStart.Valid {
		task.ActualStartTime = &actualStart.Time
	}
	if actualEnd.Valid {
		task.ActualEndTime = &actualEnd.Time
	}
	if assignee.Valid {
		task.AssigneeNurseID = &assignee.Int64
	}
	if executor.Valid {
		task.ExecutorStaffID = &executor.Int64
	}
	if completer.Valid {
		task.CompleterNurseID = &completer.Int64
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &task.Data); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
	}
	if len(resultRaw) > 0 {
		task.Result = &types.TaskResult{}
		if err := json.Unmarshal(resultRaw, task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
	}

	return task, nil
}

// nullableID maps an optional id onto a SQL null
func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
