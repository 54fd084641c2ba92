package orders

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// TimingInput carries an order's timing strategy parameters together with
// the acknowledgement context.
type TimingInput struct {
	Strategy       types.TimingStrategy
	AcknowledgedAt time.Time
	StartTime      *time.Time
	IntervalHours  float64
	IntervalDays   int
	SlotsMask      uint32
	PlannedEnd     time.Time
}

// ResolveInstants expands a timing strategy into the ordered, deduplicated
// sequence of planned instants bounded by the order's validity window. An
// empty result is a normal outcome (e.g. an order confirmed shortly before
// its planned end) and must not be treated as an error by callers.
func ResolveInstants(in TimingInput, slots []types.SlotDefinition) ([]time.Time, error) {
	switch in.Strategy {
	case types.TimingImmediate:
		return resolveImmediate(in), nil
	case types.TimingSpecific:
		return resolveSpecific(in)
	case types.TimingCyclic:
		return resolveCyclic(in)
	case types.TimingSlots:
		return resolveSlots(in, slots)
	default:
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("unknown timing strategy %q", in.Strategy), nil)
	}
}

// resolveImmediate produces exactly one instant: the acknowledgement moment
func resolveImmediate(in TimingInput) []time.Time {
	if in.AcknowledgedAt.After(in.PlannedEnd) {
		return nil
	}
	return []time.Time{in.AcknowledgedAt}
}

// resolveSpecific produces exactly one instant: the declared start time,
// which must lie after the acknowledgement moment
func resolveSpecific(in TimingInput) ([]time.Time, error) {
	if in.StartTime == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"specific timing requires a start time", nil)
	}
	if !in.StartTime.After(in.AcknowledgedAt) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"specific start time must be after the acknowledgement time", nil)
	}
	if in.StartTime.After(in.PlannedEnd) {
		return nil, nil
	}
	return []time.Time{*in.StartTime}, nil
}

// resolveCyclic produces instants from the start time, repeating every
// IntervalHours (fractional hours supported) up to the planned end
func resolveCyclic(in TimingInput) ([]time.Time, error) {
	if in.StartTime == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"cyclic timing requires a start time", nil)
	}
	if in.IntervalHours <= 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("cyclic interval must be positive, got %v", in.IntervalHours), nil)
	}

	step := time.Duration(in.IntervalHours * float64(time.Hour))
	var instants []time.Time
	for t := *in.StartTime; !t.After(in.PlannedEnd); t = t.Add(step) {
		instants = append(instants, t)
	}
	return instants, nil
}

// resolveSlots expands the slot mask into one instant per set bit per
// applicable day, repeating every IntervalDays from the start time's date
// until the planned end
func resolveSlots(in TimingInput, slots []types.SlotDefinition) ([]time.Time, error) {
	start := in.AcknowledgedAt
	if in.StartTime != nil {
		start = *in.StartTime
	}

	intervalDays := in.IntervalDays
	if intervalDays < 1 {
		intervalDays = 1
	}

	if in.SlotsMask == 0 {
		return nil, nil
	}

	// Resolve the mask against the configured slot dictionary once
	var slotMinutes []int
	for i, slot := range slots {
		if in.SlotsMask&(1<<uint(i)) == 0 {
			continue
		}
		minutes, err := parseClockMinutes(slot.ClockTime)
		if err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("slot %s has invalid clock time %q", slot.Code, slot.ClockTime), nil)
		}
		slotMinutes = append(slotMinutes, minutes)
	}

	var instants []time.Time
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	endDay := in.PlannedEnd
	for ; !day.After(endDay); day = day.AddDate(0, 0, intervalDays) {
		for _, minutes := range slotMinutes {
			instant := day.Add(time.Duration(minutes) * time.Minute)
			if instant.Before(start) || instant.After(in.PlannedEnd) {
				continue
			}
			instants = append(instants, instant)
		}
	}

	return dedupeSorted(instants), nil
}

// dedupeSorted sorts instants ascending and drops duplicates
func dedupeSorted(instants []time.Time) []time.Time {
	if len(instants) == 0 {
		return instants
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	out := instants[:1]
	for _, t := range instants[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

// parseClockMinutes converts an "HH:MM" clock time into minutes from midnight
func parseClockMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return h*60 + m, nil
}
