package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

func pendingTask(id int64, category types.TaskCategory) *types.ExecutionTask {
	return &types.ExecutionTask{
		ID:               id,
		OrderID:          1,
		PatientID:        100,
		Category:         category,
		Status:           types.TaskPending,
		PlannedStartTime: time.Now(),
	}
}

func TestStartTask_SingleScanCompletesImmediately(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(1, types.CategoryImmediate)
	mockTasks.On("GetTaskByID", int64(1)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(1), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == string(types.TaskCompleted) &&
			u["actual_start_time"] != nil && u["actual_end_time"] != nil
	})).Return(nil)

	result, err := service.StartTask(testNurse(), 1)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, result.Status)
	require.NotNil(t, result.ActualStartTime)
	require.NotNil(t, result.ActualEndTime)
	assert.Equal(t, *result.ActualStartTime, *result.ActualEndTime)
	assert.Equal(t, int64(7), *result.ExecutorStaffID)
	assert.Equal(t, int64(7), *result.CompleterNurseID)
}

func TestStartTask_SingleScanRefusedWhenNotPending(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(1, types.CategoryImmediate)
	task.Status = types.TaskCompleted
	mockTasks.On("GetTaskByID", int64(1)).Return(task, nil)

	_, err := service.StartTask(testNurse(), 1)

	assert.Error(t, err)
}

func TestStartTask_DurationMovesToInProgress(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(2, types.CategoryDuration)
	task.Status = types.TaskDispensed
	started := time.Now().Add(-10 * time.Minute)
	task.ActualStartTime = &started
	mockTasks.On("GetTaskByID", int64(2)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(2), mock.MatchedBy(func(u map[string]interface{}) bool {
		// Start time was already set at dispense, must not be overwritten
		_, overwrites := u["actual_start_time"]
		return u["status"] == string(types.TaskInProgress) && !overwrites
	})).Return(nil)

	result, err := service.StartTask(testNurse(), 2)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskInProgress, result.Status)
	assert.Equal(t, started, *result.ActualStartTime)
}

func TestStartTask_LockedTaskRefused(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(3, types.CategoryDuration)
	task.Status = types.TaskOrderStopping
	mockTasks.On("GetTaskByID", int64(3)).Return(task, nil)

	_, err := service.StartTask(testNurse(), 3)

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeInvalidState, cfErr.Type)
}

func TestDispenseTask_OnlyDurationCategory(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(4, types.CategoryImmediate)
	mockTasks.On("GetTaskByID", int64(4)).Return(task, nil)

	_, err := service.DispenseTask(testNurse(), 4)

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeValidation, cfErr.Type)
}

func TestDispenseTask_MarksStart(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(5, types.CategoryDuration)
	mockTasks.On("GetTaskByID", int64(5)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(5), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == string(types.TaskDispensed) && u["actual_start_time"] != nil
	})).Return(nil)

	result, err := service.DispenseTask(testNurse(), 5)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskDispensed, result.Status)
	assert.NotNil(t, result.ActualStartTime)
	assert.Equal(t, int64(7), *result.ExecutorStaffID)
}

func TestCompleteTask_ResultPendingRequiresResult(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(6, types.CategoryResultPending)
	task.Status = types.TaskInProgress
	mockTasks.On("GetTaskByID", int64(6)).Return(task, nil)

	_, err := service.CompleteTask(testNurse(), 6, nil)

	assert.Error(t, err)
	cfErr, ok := err.(*types.CareflowError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeValidation, cfErr.Type)
}

func TestCompleteTask_ResultPendingWithResult(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(6, types.CategoryResultPending)
	task.Status = types.TaskInProgress
	started := time.Now().Add(-time.Hour)
	task.ActualStartTime = &started
	mockTasks.On("GetTaskByID", int64(6)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(6), mock.Anything).Return(nil)
	mockTasks.On("SetTaskResult", int64(6), mock.AnythingOfType("*types.TaskResult")).Return(nil)

	result := &types.TaskResult{Summary: "Findings reviewed with patient", ReportRef: "report-9"}
	completed, err := service.CompleteTask(testNurse(), 6, result)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, completed.Status)
	require.NotNil(t, completed.Result)
	assert.False(t, completed.Result.RecordedAt.IsZero())
}

func TestCompleteTask_DataCollectionCollapsesTimes(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(7, types.CategoryDataCollection)
	mockTasks.On("GetTaskByID", int64(7)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(7), mock.MatchedBy(func(u map[string]interface{}) bool {
		_, hasStart := u["actual_start_time"]
		_, hasEnd := u["actual_end_time"]
		return hasStart && hasEnd
	})).Return(nil)
	mockTasks.On("SetTaskResult", int64(7), mock.Anything).Return(nil)

	result := &types.TaskResult{
		Summary: "Vitals recorded",
		Values:  map[string]string{"bp": "120/80", "temp": "36.8"},
	}
	completed, err := service.CompleteTask(testNurse(), 7, result)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, completed.Status)
	assert.Equal(t, *completed.ActualStartTime, *completed.ActualEndTime)
}

func TestCompleteTask_DataCollectionRequiresPayload(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(7, types.CategoryDataCollection)
	mockTasks.On("GetTaskByID", int64(7)).Return(task, nil)

	_, err := service.CompleteTask(testNurse(), 7, nil)

	assert.Error(t, err)
}

func TestCompleteTask_DurationFromDispensed(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(8, types.CategoryDuration)
	task.Status = types.TaskDispensed
	started := time.Now().Add(-2 * time.Hour)
	task.ActualStartTime = &started
	mockTasks.On("GetTaskByID", int64(8)).Return(task, nil)
	mockTasks.On("UpdateTask", int64(8), mock.Anything).Return(nil)

	completed, err := service.CompleteTask(testNurse(), 8, nil)

	assert.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, completed.Status)
	assert.Equal(t, started, *completed.ActualStartTime)
	assert.NotNil(t, completed.ActualEndTime)
}

func TestCompleteTask_PendingDurationRefused(t *testing.T) {
	service, _, mockTasks, _, _ := setupTestService()

	task := pendingTask(9, types.CategoryDuration)
	mockTasks.On("GetTaskByID", int64(9)).Return(task, nil)

	_, err := service.CompleteTask(testNurse(), 9, nil)

	assert.Error(t, err)
}
