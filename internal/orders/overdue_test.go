package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BaHoon/Careflow-sub002/pkg/config"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

func TestSweep_AppliesPerCategoryTolerance(t *testing.T) {
	mockTasks := &MockTaskRepository{}
	cfg := &config.SchedulingConfig{
		OverdueToleranceMin: map[string]int{
			"immediate": 15,
			"duration":  30,
		},
	}
	sweeper := NewOverdueSweeper(mockTasks, cfg, logger.New("debug"))

	now := time.Now()
	mockTasks.On("GetOverduePendingTasks", types.CategoryImmediate, now.Add(-15*time.Minute)).
		Return([]*types.ExecutionTask{
			{ID: 1, OrderID: 1, Category: types.CategoryImmediate, Status: types.TaskPending,
				PlannedStartTime: now.Add(-time.Hour)},
		}, nil)
	mockTasks.On("GetOverduePendingTasks", types.CategoryDuration, now.Add(-30*time.Minute)).
		Return([]*types.ExecutionTask{}, nil)

	sweeper.Sweep(now)

	mockTasks.AssertExpectations(t)
}

func TestSweep_ContinuesPastFailedCategory(t *testing.T) {
	mockTasks := &MockTaskRepository{}
	cfg := &config.SchedulingConfig{
		OverdueToleranceMin: map[string]int{
			"immediate": 15,
			"duration":  30,
		},
	}
	sweeper := NewOverdueSweeper(mockTasks, cfg, logger.New("debug"))

	now := time.Now()
	mockTasks.On("GetOverduePendingTasks", types.CategoryImmediate, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("connection reset"))
	mockTasks.On("GetOverduePendingTasks", types.CategoryDuration, mock.AnythingOfType("time.Time")).
		Return([]*types.ExecutionTask{}, nil)

	sweeper.Sweep(now)

	mockTasks.AssertExpectations(t)
}
