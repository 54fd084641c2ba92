package orders

import (
	"fmt"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/interfaces"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/monitoring"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// DutyResolver looks up the staff member on duty for a care unit at an
// instant from the duty roster
type DutyResolver struct {
	roster interfaces.RosterRepository
	logger *logger.Logger
}

// NewDutyResolver creates a new duty assignment resolver
func NewDutyResolver(roster interfaces.RosterRepository, log *logger.Logger) *DutyResolver {
	return &DutyResolver{
		roster: roster,
		logger: log,
	}
}

// Resolve returns the staff id on duty in the care unit at the given
// instant, or nil when no single scheduled roster entry covers it. Zero
// matches and multiple matches both resolve to unassigned; an ambiguous
// roster is a data-quality condition, not a failure.
func (d *DutyResolver) Resolve(careUnitID int64, at time.Time) (*int64, error) {
	date := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	entries, err := d.roster.GetScheduledEntries(careUnitID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster for care unit %d: %w", careUnitID, err)
	}

	minute := at.Hour()*60 + at.Minute()

	var matches []*types.DutyRosterEntry
	for _, entry := range entries {
		if entry.Status != types.RosterScheduled {
			continue
		}
		if d.shiftCovers(entry, minute) {
			matches = append(matches, entry)
		}
	}

	switch len(matches) {
	case 1:
		monitoring.RecordDutyAssignment("assigned")
		return &matches[0].StaffID, nil
	case 0:
		monitoring.RecordDutyAssignment("unassigned")
		return nil, nil
	default:
		// Overlapping shifts are a roster data-quality problem
		d.logger.WithFields(map[string]interface{}{
			"care_unit_id": careUnitID,
			"instant":      at,
			"matches":      len(matches),
		}).Warn("Multiple roster entries cover instant, leaving task unassigned")
		monitoring.RecordDutyAssignment("ambiguous")
		return nil, nil
	}
}

// shiftCovers reports whether the entry's shift window contains the given
// minute of day. A shift whose end precedes its start crosses midnight.
func (d *DutyResolver) shiftCovers(entry *types.DutyRosterEntry, minute int) bool {
	start, err := parseClockMinutes(entry.ShiftStart)
	if err != nil {
		d.logger.WithField("roster_entry_id", entry.ID).WithError(err).Warn("Skipping roster entry with invalid shift start")
		return false
	}
	end, err := parseClockMinutes(entry.ShiftEnd)
	if err != nil {
		d.logger.WithField("roster_entry_id", entry.ID).WithError(err).Warn("Skipping roster entry with invalid shift end")
		return false
	}

	if start <= end {
		return minute >= start && minute <= end
	}
	// Overnight shift
	return minute >= start || minute <= end
}
