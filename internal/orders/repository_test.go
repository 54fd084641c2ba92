package orders

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaHoon/Careflow-sub002/pkg/database"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRepository(&database.DB{DB: db}, logger.New("debug"))

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func TestRepository_GetOrderByID(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	created := time.Now().Add(-time.Hour)
	plannedEnd := time.Now().Add(24 * time.Hour)
	details, err := json.Marshal(&types.MedicationDetails{
		Strategy: types.TimingCyclic,
		Route:    "oral",
		Drugs:    []types.DrugItem{{DrugID: 1, Dosage: "100mg"}},
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "kind", "patient_id", "physician_id", "nurse_id", "care_unit_id",
		"is_long_term", "status", "created_at", "planned_end_time", "actual_end_time", "details",
	}).AddRow(
		int64(1), string(types.KindMedication), int64(100), int64(42), nil, int64(3),
		false, string(types.OrderPendingReview), created, plannedEnd, nil, details,
	)

	mock.ExpectQuery("(?s)SELECT .+ FROM orders").WithArgs(int64(1)).WillReturnRows(rows)

	order, err := repo.GetOrderByID(1)

	assert.NoError(t, err)
	assert.Equal(t, types.KindMedication, order.Kind)
	assert.Equal(t, types.OrderPendingReview, order.Status)
	assert.Nil(t, order.NurseID)
	require.NotNil(t, order.Medication)
	assert.Equal(t, types.TimingCyclic, order.Medication.Strategy)
	assert.Equal(t, "oral", order.Medication.Route)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetOrderByID_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("(?s)SELECT .+ FROM orders").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetOrderByID(99)

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeNotFound, cfErr.Type)
}

func TestRepository_UpdateOrder(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE orders SET").
		WithArgs(string(types.OrderAccepted), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateOrder(1, map[string]interface{}{"status": string(types.OrderAccepted)})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateOrder_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE orders SET").
		WithArgs(string(types.OrderAccepted), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOrder(99, map[string]interface{}{"status": string(types.OrderAccepted)})

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeNotFound, cfErr.Type)
}

func TestRepository_AppendStatusHistory(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	record := &types.StatusHistoryRecord{
		ID:         uuid.New().String(),
		OrderID:    1,
		FromStatus: types.OrderPendingReview,
		ToStatus:   types.OrderAccepted,
		ActorID:    7,
		ActorType:  types.ActorNurse,
		ActorName:  "Nurse Park",
		RecordedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(record.ID, record.OrderID, string(record.FromStatus), string(record.ToStatus),
			record.ActorID, string(record.ActorType), record.ActorName, record.Reason, record.RecordedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendStatusHistory(record)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateTasks_AssignsGeneratedIDs(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	tasks := []*types.ExecutionTask{
		{OrderID: 1, PatientID: 100, Category: types.CategoryImmediate, Status: types.TaskPending,
			PlannedStartTime: now, Data: types.TaskPayload{TaskType: "medication_administration"},
			CreatedAt: now, UpdatedAt: now},
		{OrderID: 1, PatientID: 100, Category: types.CategoryImmediate, Status: types.TaskPending,
			PlannedStartTime: now.Add(time.Hour), Data: types.TaskPayload{TaskType: "medication_administration"},
			CreatedAt: now, UpdatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO execution_tasks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectQuery("INSERT INTO execution_tasks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(22)))
	mock.ExpectCommit()

	err := repo.CreateTasks(tasks)

	assert.NoError(t, err)
	assert.Equal(t, int64(21), tasks[0].ID)
	assert.Equal(t, int64(22), tasks[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateTasks_EmptyBatchIsNoop(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	err := repo.CreateTasks(nil)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetTasksByOrder(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	payload, err := json.Marshal(types.TaskPayload{TaskType: "medication_administration", Title: "Administer medication"})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "order_id", "patient_id", "category", "status", "planned_start_time",
		"actual_start_time", "actual_end_time", "assignee_nurse_id",
		"executor_staff_id", "completer_nurse_id", "is_rolled_back",
		"data", "result", "created_at", "updated_at",
	}).AddRow(
		int64(21), int64(1), int64(100), string(types.CategoryImmediate), string(types.TaskPending), now,
		nil, nil, int64(7), nil, nil, false, payload, nil, now, now,
	)

	mock.ExpectQuery("(?s)SELECT .+ FROM execution_tasks").WithArgs(int64(1)).WillReturnRows(rows)

	tasks, err := repo.GetTasksByOrder(1)

	assert.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.CategoryImmediate, tasks[0].Category)
	assert.Equal(t, "medication_administration", tasks[0].Data.TaskType)
	require.NotNil(t, tasks[0].AssigneeNurseID)
	assert.Equal(t, int64(7), *tasks[0].AssigneeNurseID)
	assert.Nil(t, tasks[0].Result)
}

func TestRepository_CreateLockRecords(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	records := []*types.TaskLockRecord{
		{ID: uuid.New().String(), OrderID: 1, TaskID: 3, PriorStatus: types.TaskPending, LockedAt: now},
		{ID: uuid.New().String(), OrderID: 1, TaskID: 4, PriorStatus: types.TaskDispensed, LockedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO task_lock_ledger").
		WithArgs(records[0].ID, records[0].OrderID, records[0].TaskID, string(records[0].PriorStatus), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO task_lock_ledger").
		WithArgs(records[1].ID, records[1].OrderID, records[1].TaskID, string(records[1].PriorStatus), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CreateLockRecords(records)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetActiveLockRecords(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "order_id", "task_id", "prior_status", "locked_at", "restored", "restored_at",
	}).AddRow("a", int64(1), int64(3), string(types.TaskPending), now, false, nil)

	mock.ExpectQuery("(?s)SELECT .+ FROM task_lock_ledger").WithArgs(int64(1)).WillReturnRows(rows)

	records, err := repo.GetActiveLockRecords(1)

	assert.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.TaskPending, records[0].PriorStatus)
	assert.False(t, records[0].Restored)
	assert.Nil(t, records[0].RestoredAt)
}

func TestRepository_GetScheduledEntries(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "staff_id", "care_unit_id", "work_date", "shift_start", "shift_end", "status",
	}).AddRow(int64(1), int64(7), int64(3), date, "08:00", "16:00", string(types.RosterScheduled))

	mock.ExpectQuery("(?s)SELECT .+ FROM duty_roster").
		WithArgs(int64(3), date, string(types.RosterScheduled)).
		WillReturnRows(rows)

	entries, err := repo.GetScheduledEntries(3, date)

	assert.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].StaffID)
	assert.Equal(t, "08:00", entries[0].ShiftStart)
}

func TestRepository_DrugName(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT name FROM drugs").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("amoxicillin"))

	name, err := repo.DrugName(1)

	assert.NoError(t, err)
	assert.Equal(t, "amoxicillin", name)
}

func TestRepository_DrugName_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT name FROM drugs").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := repo.DrugName(99)

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeNotFound, cfErr.Type)
}
