package attendance

import (
	"sort"
)

// =============================================================================
// SHIFT - Cyclic composition of time periods
// =============================================================================

type ShiftID int64

// MaxPeriodsPerDay bounds the number of periods on one cycle day.
const MaxPeriodsPerDay = 3

// ShiftPeriod places a TimePeriod at one position of a shift cycle.
// MustCheckIn/MustCheckOut select which punches are required; a position
// with both false is a free-punch period.
type ShiftPeriod struct {
	ShiftID      ShiftID
	PeriodID     TimePeriodID `validate:"gt=0"`
	DayOfCycle   int          `validate:"gte=1"`
	SortOrder    int          `validate:"gte=0"`
	MustCheckIn  bool
	MustCheckOut bool
}

// Shift repeats its periods every CycleDays days, starting at an
// assignment's start date (cycle day 1).
type Shift struct {
	ID        ShiftID       `validate:"gt=0"`
	Name      string        `validate:"required,max=64"`
	CycleDays int           `validate:"gte=1,lte=366"`
	Periods   []ShiftPeriod `validate:"dive"`
}

// PeriodsOn returns the positions of one cycle day ordered by SortOrder.
func (s Shift) PeriodsOn(dayOfCycle int) []ShiftPeriod {
	var out []ShiftPeriod
	for _, sp := range s.Periods {
		if sp.DayOfCycle == dayOfCycle {
			out = append(out, sp)
		}
	}
	sortPositions(out)
	return out
}

// DayOfCycle returns the 1-indexed cycle day of date for a cycle anchored at
// start. Dates before start are mapped backwards into the same cycle.
func (s Shift) DayOfCycle(start, date Date) int {
	if s.CycleDays < 1 {
		return 1
	}
	n := DaysBetween(start, date) % s.CycleDays
	if n < 0 {
		n += s.CycleDays
	}
	return n + 1
}

func sortPositions(ps []ShiftPeriod) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].DayOfCycle != ps[j].DayOfCycle {
			return ps[i].DayOfCycle < ps[j].DayOfCycle
		}
		if ps[i].SortOrder != ps[j].SortOrder {
			return ps[i].SortOrder < ps[j].SortOrder
		}
		return ps[i].PeriodID < ps[j].PeriodID
	})
}

// =============================================================================
// CATALOG - Arena of immutable time periods and shifts keyed by id
// =============================================================================

// Catalog is a read-only snapshot of time periods and shifts. Shifts refer to
// periods by id and are resolved through lookups, never embedded pointers.
type Catalog struct {
	periods map[TimePeriodID]TimePeriod
	shifts  map[ShiftID]Shift
}

func NewCatalog(periods []TimePeriod, shifts []Shift) *Catalog {
	c := &Catalog{
		periods: make(map[TimePeriodID]TimePeriod, len(periods)),
		shifts:  make(map[ShiftID]Shift, len(shifts)),
	}
	for _, p := range periods {
		c.periods[p.ID] = p
	}
	for _, s := range shifts {
		positions := append([]ShiftPeriod(nil), s.Periods...)
		for i := range positions {
			positions[i].ShiftID = s.ID
		}
		sortPositions(positions)
		s.Periods = positions
		c.shifts[s.ID] = s
	}
	return c
}

func (c *Catalog) TimePeriod(id TimePeriodID) (TimePeriod, bool) {
	p, ok := c.periods[id]
	return p, ok
}

func (c *Catalog) Shift(id ShiftID) (Shift, bool) {
	s, ok := c.shifts[id]
	return s, ok
}

// DanglingReferences lists every shift position whose time period is missing.
func (c *Catalog) DanglingReferences() []*DanglingReferenceError {
	ids := make([]ShiftID, 0, len(c.shifts))
	for id := range c.shifts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*DanglingReferenceError
	for _, id := range ids {
		for _, sp := range c.shifts[id].Periods {
			if _, ok := c.periods[sp.PeriodID]; !ok {
				out = append(out, &DanglingReferenceError{
					Kind:     "time_period",
					ID:       int64(sp.PeriodID),
					Referrer: positionRef(sp),
				})
			}
		}
	}
	return out
}
