package orders

import (
	"fmt"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// singleScanCategories complete in one scan: start and end collapse to the
// same instant
var singleScanCategories = map[types.TaskCategory]bool{
	types.CategoryImmediate:             true,
	types.CategoryApplicationWithPrint:  true,
	types.CategoryDischargeConfirmation: true,
}

// StartTask begins execution of a pending task. Single-scan categories
// complete immediately; duration-class tasks move to in-progress and await
// a completing action.
func (s *Service) StartTask(actor types.Actor, taskID int64) (*types.ExecutionTask, error) {
	task, err := s.tasks.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if singleScanCategories[task.Category] {
		if task.Status != types.TaskPending {
			return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("task %d is %s, expected %s", taskID, task.Status, types.TaskPending), nil)
		}
		updates := map[string]interface{}{
			"status":             string(types.TaskCompleted),
			"actual_start_time":  now,
			"actual_end_time":    now,
			"executor_staff_id":  actor.ID,
			"completer_nurse_id": actor.ID,
		}
		if err := s.tasks.UpdateTask(taskID, updates); err != nil {
			return nil, err
		}
		task.Status = types.TaskCompleted
		task.ActualStartTime = &now
		task.ActualEndTime = &now
		task.ExecutorStaffID = &actor.ID
		task.CompleterNurseID = &actor.ID
		s.logger.Audit(actor.ID, "task_scan_complete", fmt.Sprintf("task/%d", taskID), true, nil)
		return task, nil
	}

	if task.Status != types.TaskPending && task.Status != types.TaskDispensed {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("task %d is %s and cannot be started", taskID, task.Status), nil)
	}

	updates := map[string]interface{}{
		"status":            string(types.TaskInProgress),
		"executor_staff_id": actor.ID,
	}
	if task.ActualStartTime == nil {
		updates["actual_start_time"] = now
		task.ActualStartTime = &now
	}
	if err := s.tasks.UpdateTask(taskID, updates); err != nil {
		return nil, err
	}
	task.Status = types.TaskInProgress
	task.ExecutorStaffID = &actor.ID
	s.logger.Audit(actor.ID, "task_start", fmt.Sprintf("task/%d", taskID), true, nil)
	return task, nil
}

// DispenseTask records the dispensing scan for a duration-class medication
// task, marking the start of the administration pair
func (s *Service) DispenseTask(actor types.Actor, taskID int64) (*types.ExecutionTask, error) {
	task, err := s.tasks.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}
	if task.Category != types.CategoryDuration {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("task %d is %s, only duration tasks are dispensed", taskID, task.Category), nil)
	}
	if task.Status != types.TaskPending {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("task %d is %s, expected %s", taskID, task.Status, types.TaskPending), nil)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":            string(types.TaskDispensed),
		"actual_start_time": now,
		"executor_staff_id": actor.ID,
	}
	if err := s.tasks.UpdateTask(taskID, updates); err != nil {
		return nil, err
	}
	task.Status = types.TaskDispensed
	task.ActualStartTime = &now
	task.ExecutorStaffID = &actor.ID
	s.logger.Audit(actor.ID, "task_dispense", fmt.Sprintf("task/%d", taskID), true, nil)
	return task, nil
}

// CompleteTask finishes a started task. Result-pending tasks require a
// result payload; data-collection tasks complete in one submission, so
// start and end collapse.
func (s *Service) CompleteTask(actor types.Actor, taskID int64, result *types.TaskResult) (*types.ExecutionTask, error) {
	task, err := s.tasks.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}

	switch task.Category {
	case types.CategoryDataCollection:
		if task.Status != types.TaskPending {
			return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("task %d is %s, expected %s", taskID, task.Status, types.TaskPending), nil)
		}
		if result == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("task %d requires a submission payload", taskID), nil)
		}
	case types.CategoryResultPending:
		if task.Status != types.TaskInProgress {
			return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("task %d is %s, expected %s", taskID, task.Status, types.TaskInProgress), nil)
		}
		if result == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("task %d requires a result to complete", taskID), nil)
		}
	default:
		if task.Status != types.TaskInProgress && task.Status != types.TaskDispensed {
			return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("task %d is %s and cannot be completed", taskID, task.Status), nil)
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":             string(types.TaskCompleted),
		"actual_end_time":    now,
		"completer_nurse_id": actor.ID,
	}
	// Tasks completed without a prior start collapse start and end
	if task.ActualStartTime == nil {
		updates["actual_start_time"] = now
		task.ActualStartTime = &now
	}
	if err := s.tasks.UpdateTask(taskID, updates); err != nil {
		return nil, err
	}

	if result != nil {
		result.RecordedAt = now
		if err := s.tasks.SetTaskResult(taskID, result); err != nil {
			return nil, err
		}
		task.Result = result
	}

	task.Status = types.TaskCompleted
	task.ActualEndTime = &now
	task.CompleterNurseID = &actor.ID
	s.logger.Audit(actor.ID, "task_complete", fmt.Sprintf("task/%d", taskID), true, nil)
	return task, nil
}
