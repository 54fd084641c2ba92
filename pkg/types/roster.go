package types

import "time"

// RosterStatus represents duty roster entry states
type RosterStatus string

const (
	RosterScheduled RosterStatus = "scheduled"
	RosterCheckedIn RosterStatus = "checked_in"
	RosterLeave     RosterStatus = "leave"
)

// DutyRosterEntry records which staff member covers which care unit during
// which shift window on a given work date. Shift times are clock times in
// "15:04" form; a shift whose end precedes its start crosses midnight.
type DutyRosterEntry struct {
	ID         int64        `json:"id" db:"id"`
	StaffID    int64        `json:"staff_id" db:"staff_id"`
	CareUnitID int64        `json:"care_unit_id" db:"care_unit_id"`
	WorkDate   time.Time    `json:"work_date" db:"work_date"`
	ShiftStart string       `json:"shift_start" db:"shift_start"`
	ShiftEnd   string       `json:"shift_end" db:"shift_end"`
	Status     RosterStatus `json:"status" db:"status"`
}

// SlotDefinition is one named hospital time-of-day window. The ordered slot
// list is hospital configuration; a slots-strategy order selects entries by
// bit position in its mask.
type SlotDefinition struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	ClockTime string `json:"clock_time"` // "15:04"
}
