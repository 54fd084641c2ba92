package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

func setupTestResolver() (*DutyResolver, *MockRosterRepository) {
	mockRoster := &MockRosterRepository{}
	return NewDutyResolver(mockRoster, logger.New("debug")), mockRoster
}

func dayShift(staffID int64) *types.DutyRosterEntry {
	return &types.DutyRosterEntry{
		ID:         1,
		StaffID:    staffID,
		CareUnitID: 3,
		ShiftStart: "08:00",
		ShiftEnd:   "16:00",
		Status:     types.RosterScheduled,
	}
}

func TestResolve_AssignsCoveringShift(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return([]*types.DutyRosterEntry{dayShift(7)}, nil)

	staffID, err := resolver.Resolve(3, time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC))

	assert.NoError(t, err)
	require.NotNil(t, staffID)
	assert.Equal(t, int64(7), *staffID)
}

func TestResolve_OutsideShiftUnassigned(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return([]*types.DutyRosterEntry{dayShift(7)}, nil)

	staffID, err := resolver.Resolve(3, time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Nil(t, staffID)
}

func TestResolve_OvernightShiftCoversBothSides(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	night := &types.DutyRosterEntry{
		ID:         2,
		StaffID:    9,
		CareUnitID: 3,
		ShiftStart: "22:00",
		ShiftEnd:   "06:00",
		Status:     types.RosterScheduled,
	}
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return([]*types.DutyRosterEntry{night}, nil)

	lateEvening, err := resolver.Resolve(3, time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC))
	assert.NoError(t, err)
	require.NotNil(t, lateEvening)
	assert.Equal(t, int64(9), *lateEvening)

	earlyMorning, err := resolver.Resolve(3, time.Date(2026, 3, 10, 5, 30, 0, 0, time.UTC))
	assert.NoError(t, err)
	require.NotNil(t, earlyMorning)
	assert.Equal(t, int64(9), *earlyMorning)

	midday, err := resolver.Resolve(3, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Nil(t, midday)
}

func TestResolve_AmbiguousRosterLeavesUnassigned(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	overlapping := []*types.DutyRosterEntry{
		dayShift(7),
		{ID: 2, StaffID: 8, CareUnitID: 3, ShiftStart: "06:00", ShiftEnd: "14:00", Status: types.RosterScheduled},
	}
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return(overlapping, nil)

	staffID, err := resolver.Resolve(3, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Nil(t, staffID)
}

func TestResolve_EmptyRosterUnassigned(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return([]*types.DutyRosterEntry{}, nil)

	staffID, err := resolver.Resolve(3, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Nil(t, staffID)
}

func TestResolve_SkipsInvalidShiftTimes(t *testing.T) {
	resolver, mockRoster := setupTestResolver()
	broken := &types.DutyRosterEntry{
		ID:         3,
		StaffID:    11,
		CareUnitID: 3,
		ShiftStart: "not-a-time",
		ShiftEnd:   "16:00",
		Status:     types.RosterScheduled,
	}
	mockRoster.On("GetScheduledEntries", int64(3), mock.AnythingOfType("time.Time")).
		Return([]*types.DutyRosterEntry{broken, dayShift(7)}, nil)

	staffID, err := resolver.Resolve(3, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))

	assert.NoError(t, err)
	require.NotNil(t, staffID)
	assert.Equal(t, int64(7), *staffID)
}
