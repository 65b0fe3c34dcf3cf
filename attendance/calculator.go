/*
calculator.go - The daily attendance calculation engine

PURPOSE:
  Classifies every resolved period of a work date from punches, corrections
  and approved leave, then folds the periods into one DailyRecord.

PER-PERIOD STATE MACHINE:
  1. Structural check   dangling time period => data_integrity_error
  2. Leave coverage     fully covered => on_leave; partial leave moves the
                        effective start/end and shrinks the required time
  3. Check-in           earliest sign_in in [start-in0, start+in1];
                        late when t > start + lateGrace
  4. Check-out          latest sign_out in [end-out0, end+out1];
                        early when t < end - earlyLeaveGrace
  5. Verdict            both missing and required > absentTime => absent
                        one or both missing                   => missing_card
                        late / early_leave / normal

DAY VERDICT:
  Worst period status by severity; minutes and hours are sums. Hours outside
  [minWorkHours, maxWorkHours] add an advisory rule_violation.

PUNCH PRECISION:
  Punches are judged at minute precision (seconds are truncated), so a
  sign-in at 09:10:59 with a 10 minute grace on a 09:00 start is on time.

CORRECTIONS:
  A correction is judged exactly like a clock event of the matching type and
  is marked Corrected on the record. Corrections never trigger calculation.

SEE ALSO:
  - resolve.go: Produces the Resolution consumed here
  - record.go: Output types
*/
package attendance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Input is everything one calculation needs. Events, corrections and leaves
// may contain records of other employees or dates; they are filtered.
type Input struct {
	EmployeeID  EmployeeID
	WorkDate    Date
	Resolution  Resolution
	Events      []ClockEvent
	Corrections []Correction
	Leaves      []LeaveRecord
}

// Calculator is stateless; the zero value is ready to use and safe for
// concurrent use.
type Calculator struct{}

// Compute produces the DailyRecord for in. It never fails: structural
// problems are reported as the record's status and violations.
func (Calculator) Compute(in Input) DailyRecord {
	rec := DailyRecord{
		ID:            RecordID(in.EmployeeID, in.WorkDate),
		EmployeeID:    in.EmployeeID,
		WorkDate:      in.WorkDate,
		RequiredHours: decimal.Zero,
		ActualHours:   decimal.Zero,
	}

	res := in.Resolution
	switch res.Kind {
	case ResolvedConflict:
		rec.Status = StatusScheduleConflict
		msg := "multiple schedule assignments are active"
		if res.Conflict != nil {
			msg = res.Conflict.Error()
		}
		rec.Violations = []Violation{{Code: ViolationScheduleConflict, Message: msg}}
		return rec
	case ResolvedUnscheduled, "":
		rec.Status = StatusNotRequired
		return rec
	}

	shiftID := res.ShiftID
	rec.ShiftID = &shiftID

	switch res.Kind {
	case ResolvedBroken:
		rec.Status = StatusDataIntegrity
		msg := "assigned shift does not exist"
		if res.Integrity != nil {
			msg = res.Integrity.Error()
		}
		rec.Violations = []Violation{{Code: ViolationDataIntegrity, Message: msg}}
		return rec
	case ResolvedRestDay:
		rec.Status = StatusRest
		return rec
	}

	pool := newPunchPool(collectPunches(in))
	leaves := approvedLeave(in.EmployeeID, in.Leaves)

	results := make([]PeriodResult, 0, len(res.Periods))
	for i, rp := range res.Periods {
		// A period's check-out window stops where the next period's
		// check-in window opens.
		var outLimit time.Time
		if i+1 < len(res.Periods) && res.Periods[i+1].Integrity == nil {
			_, nextIn, _ := punchWindows(res.Periods[i+1], leaves)
			outLimit = nextIn.Start
		}
		results = append(results, evaluatePeriod(rp, pool, leaves, outLimit))
	}
	fold(&rec, res.Periods, results)
	return rec
}

// =============================================================================
// INPUT NORMALIZATION
// =============================================================================

type candidate struct {
	at        time.Time // minute precision, used for judging
	raw       time.Time
	typ       PunchType
	source    string
	id        string
	corrected bool
}

func (c candidate) punch() *Punch {
	return &Punch{At: c.raw, Source: c.source, EventID: c.id, Corrected: c.corrected}
}

// collectPunches merges clock events and corrections into one ordered list.
func collectPunches(in Input) []candidate {
	var out []candidate
	for _, e := range in.Events {
		if e.EmployeeID != in.EmployeeID || !e.Type.Valid() {
			continue
		}
		out = append(out, candidate{
			at:     e.ClockTime.Truncate(time.Minute),
			raw:    e.ClockTime,
			typ:    e.Type,
			source: e.Source,
			id:     e.ID,
		})
	}
	for _, c := range in.Corrections {
		if c.EmployeeID != in.EmployeeID || !c.Type.Valid() {
			continue
		}
		out = append(out, candidate{
			at:        c.CorrectionTime.Truncate(time.Minute),
			raw:       c.CorrectionTime,
			typ:       c.punchType(),
			source:    SourceCorrection,
			id:        c.ID,
			corrected: true,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		if !a.raw.Equal(b.raw) {
			return a.raw.Before(b.raw)
		}
		if a.corrected != b.corrected {
			return !a.corrected
		}
		return a.id < b.id
	})
	return out
}

// punchPool hands each punch to at most one period of the day.
type punchPool struct {
	punches []candidate
	taken   []bool
}

func newPunchPool(punches []candidate) *punchPool {
	return &punchPool{punches: punches, taken: make([]bool, len(punches))}
}

// first claims the earliest free punch of typ inside w.
func (p *punchPool) first(typ PunchType, w Interval) *candidate {
	for i := range p.punches {
		if !p.taken[i] && p.punches[i].typ == typ && w.Covers(p.punches[i].at) {
			p.taken[i] = true
			return &p.punches[i]
		}
	}
	return nil
}

// last claims the latest free punch of typ inside w.
func (p *punchPool) last(typ PunchType, w Interval) *candidate {
	for i := len(p.punches) - 1; i >= 0; i-- {
		if !p.taken[i] && p.punches[i].typ == typ && w.Covers(p.punches[i].at) {
			p.taken[i] = true
			return &p.punches[i]
		}
	}
	return nil
}

// approvedLeave returns the employee's approved leave as sorted, merged intervals.
func approvedLeave(employeeID EmployeeID, leaves []LeaveRecord) []Interval {
	var spans []Interval
	for _, l := range leaves {
		if l.EmployeeID != employeeID || l.Status != LeaveApproved || !l.EndTime.After(l.StartTime) {
			continue
		}
		spans = append(spans, l.Interval())
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	var merged []Interval
	for _, s := range spans {
		if n := len(merged); n > 0 && !s.Start.After(merged[n-1].End) {
			if s.End.After(merged[n-1].End) {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// =============================================================================
// PERIOD EVALUATION
// =============================================================================

// punchWindows returns the period's effective span after partial leave and
// the windows its check-in and check-out punches must fall in.
func punchWindows(rp ResolvedPeriod, leaves []Interval) (effective, inWindow, outWindow Interval) {
	effective = rp.Scheduled
	for _, l := range leaves {
		if !l.Start.After(effective.Start) && l.End.After(effective.Start) {
			effective.Start = l.End
		}
		if l.Start.Before(effective.End) && !l.End.Before(effective.End) {
			effective.End = l.Start
		}
	}
	if !rp.Period.Bounded() {
		return effective, rp.Scheduled, rp.Scheduled
	}
	rules := rp.Period.Rules
	inWindow = Interval{
		Start: effective.Start.Add(-minutesDuration(rules.CheckInStartOffset)),
		End:   effective.Start.Add(minutesDuration(rules.CheckInEndOffset)),
	}
	outWindow = Interval{
		Start: effective.End.Add(-minutesDuration(rules.CheckOutStartOffset)),
		End:   effective.End.Add(minutesDuration(rules.CheckOutEndOffset)),
	}
	return effective, inWindow, outWindow
}

func evaluatePeriod(rp ResolvedPeriod, pool *punchPool, leaves []Interval, outLimit time.Time) PeriodResult {
	pr := PeriodResult{
		PeriodID:   rp.Position.PeriodID,
		DayOfCycle: rp.Position.DayOfCycle,
		SortOrder:  rp.Position.SortOrder,
	}
	if rp.Integrity != nil {
		pr.Status = StatusDataIntegrity
		return pr
	}

	period := rp.Period
	rules := period.Rules
	pr.PeriodName = period.Name
	pr.ScheduledStart = rp.Scheduled.Start
	pr.ScheduledEnd = rp.Scheduled.End

	restMinutes := wholeMinutes(rp.Rest.Duration())
	workMinutes := wholeMinutes(rp.Scheduled.Duration()) - restMinutes
	covered := coveredMinutes(leaves, rp.Scheduled, rp.Rest)
	pr.LeaveMinutes = covered

	if workMinutes > 0 && covered >= workMinutes {
		pr.Status = StatusOnLeave
		pr.CheckInStatus = PunchOnLeave
		pr.CheckOutStatus = PunchOnLeave
		return pr
	}

	// Partial leave touching a boundary moves that boundary.
	effective, inWindow, outWindow := punchWindows(rp, leaves)
	if !outLimit.IsZero() && outLimit.After(outWindow.Start) && outLimit.Before(outWindow.End) {
		outWindow.End = outLimit
	}

	required := workMinutes
	if !period.Bounded() {
		required = 0
	}
	if rules.MinWorkHours.Valid {
		required = hoursToMinutes(rules.MinWorkHours.Decimal)
	}
	required -= covered
	if required < 0 {
		required = 0
	}
	pr.RequiredMinutes = required

	judged := period.Bounded() && period.Type == PeriodFixed

	// Earliest sign-in and last sign-out of record. A punch claimed by an
	// earlier period is not seen again.
	in := pool.first(PunchSignIn, inWindow)
	out := pool.last(PunchSignOut, outWindow)

	switch {
	case in == nil && rp.Position.MustCheckIn:
		pr.CheckInStatus = PunchMissingCheckIn
	case in == nil || !rp.Position.MustCheckIn:
		pr.CheckInStatus = PunchNotRequired
	case !judged:
		pr.CheckInStatus = PunchOnTime
	default:
		graceEnd := effective.Start.Add(minutesDuration(rules.LateGraceMinutes))
		if in.at.After(graceEnd) {
			pr.CheckInStatus = PunchLate
			pr.LateMinutes = wholeMinutes(in.at.Sub(graceEnd))
		} else {
			pr.CheckInStatus = PunchOnTime
		}
	}
	if in != nil {
		pr.CheckIn = in.punch()
	}

	switch {
	case out == nil && rp.Position.MustCheckOut:
		pr.CheckOutStatus = PunchMissingCheckOut
	case out == nil || !rp.Position.MustCheckOut:
		pr.CheckOutStatus = PunchNotRequired
	case !judged:
		pr.CheckOutStatus = PunchOnTime
	default:
		earliest := effective.End.Add(-minutesDuration(rules.EarlyLeaveGraceMinutes))
		if out.at.Before(earliest) {
			pr.CheckOutStatus = PunchEarlyLeave
			pr.EarlyLeaveMinutes = wholeMinutes(earliest.Sub(out.at))
		} else {
			pr.CheckOutStatus = PunchOnTime
		}
	}
	if out != nil {
		pr.CheckOut = out.punch()
	}

	// Worked time is the punched span, not clipped to the schedule.
	if in != nil && out != nil && out.at.After(in.at) {
		span := Interval{Start: in.at, End: out.at}
		worked := wholeMinutes(span.Duration()) - wholeMinutes(span.Intersect(rp.Rest).Duration())
		if worked > 0 {
			pr.WorkedMinutes = worked
		}
	}

	expected := required
	if period.Bounded() {
		expected = workMinutes - covered
	}

	switch {
	case pr.CheckInStatus.Missing() && pr.CheckOutStatus.Missing():
		if expected > hoursToMinutes(rules.AbsentTime) {
			pr.Status = StatusAbsent
			pr.AbsentMinutes = expected
		} else {
			pr.Status = StatusMissingCard
		}
	case pr.CheckInStatus.Missing() || pr.CheckOutStatus.Missing():
		pr.Status = StatusMissingCard
	case pr.CheckInStatus == PunchLate:
		pr.Status = StatusLate
	case pr.CheckOutStatus == PunchEarlyLeave:
		pr.Status = StatusEarlyLeave
	default:
		pr.Status = StatusNormal
	}
	return pr
}

// coveredMinutes returns how much of span, excluding rest, the merged leave
// intervals cover.
func coveredMinutes(leaves []Interval, span, rest Interval) int {
	total := 0
	for _, l := range leaves {
		part := l.Intersect(span)
		if part.IsZero() {
			continue
		}
		total += wholeMinutes(part.Duration()) - wholeMinutes(part.Intersect(rest).Duration())
	}
	return total
}

// =============================================================================
// DAY AGGREGATION
// =============================================================================

func fold(rec *DailyRecord, periods []ResolvedPeriod, results []PeriodResult) {
	rec.Periods = results

	var (
		worst    Status
		computed int
		required int
		worked   int
		outcomes = map[Status]bool{}
	)
	for i, r := range results {
		if r.Status == StatusDataIntegrity {
			msg := "time period is missing"
			if periods[i].Integrity != nil {
				msg = periods[i].Integrity.Error()
			}
			rec.Violations = append(rec.Violations, Violation{
				Code:     ViolationDataIntegrity,
				PeriodID: r.PeriodID,
				Message:  msg,
			})
			continue
		}
		computed++

		if rec.PeriodID == nil {
			id := r.PeriodID
			rec.PeriodID = &id
		}
		if worst == "" || r.Status.rank() > worst.rank() {
			worst = r.Status
		}
		if r.Status != StatusNormal {
			outcomes[r.Status] = true
		}
		if r.CheckInStatus == PunchLate {
			outcomes[StatusLate] = true
		}
		if r.CheckOutStatus == PunchEarlyLeave {
			outcomes[StatusEarlyLeave] = true
		}

		rec.LateMinutes += r.LateMinutes
		rec.EarlyLeaveMinutes += r.EarlyLeaveMinutes
		rec.AbsentMinutes += r.AbsentMinutes
		required += r.RequiredMinutes
		worked += r.WorkedMinutes

		if r.CheckIn != nil && rec.CheckInTime == nil {
			at := r.CheckIn.At
			rec.CheckInTime = &at
			rec.CheckInCorrected = r.CheckIn.Corrected
		}
		if r.CheckOut != nil {
			at := r.CheckOut.At
			rec.CheckOutTime = &at
			rec.CheckOutCorrected = r.CheckOut.Corrected
		}
	}

	if computed == 0 {
		rec.Status = StatusDataIntegrity
		return
	}
	rec.Status = worst
	rec.RequiredHours = minutesToHours(required)
	rec.ActualHours = minutesToHours(worked)

	for s := range outcomes {
		rec.Outcomes = append(rec.Outcomes, s)
	}
	sort.Slice(rec.Outcomes, func(i, j int) bool {
		return rec.Outcomes[i].rank() > rec.Outcomes[j].rank()
	})

	if v, ok := hourBoundsViolation(periods, results); ok {
		rec.Violations = append(rec.Violations, v)
	}
}

// hourBoundsViolation checks worked hours against the summed min/max hours of
// the periods that were actually worked. It only applies when every such
// period has both punches, otherwise the punch status already tells the story.
func hourBoundsViolation(periods []ResolvedPeriod, results []PeriodResult) (Violation, bool) {
	var (
		worked     int
		minMinutes int
		maxMinutes int
		hasMin     bool
		allHaveMax = true
		considered int
	)
	for i, r := range results {
		if r.Status == StatusDataIntegrity || r.Status == StatusOnLeave {
			continue
		}
		if r.CheckIn == nil || r.CheckOut == nil {
			return Violation{}, false
		}
		considered++
		worked += r.WorkedMinutes

		rules := periods[i].Period.Rules
		if rules.MinWorkHours.Valid {
			hasMin = true
			minMinutes += hoursToMinutes(rules.MinWorkHours.Decimal)
		}
		if rules.MaxWorkHours.Valid {
			maxMinutes += hoursToMinutes(rules.MaxWorkHours.Decimal)
		} else {
			allHaveMax = false
		}
	}
	if considered == 0 {
		return Violation{}, false
	}

	actual := minutesToHours(worked)
	switch {
	case hasMin && worked < minMinutes:
		return Violation{
			Code:   ViolationRule,
			Detail: DetailBelowMinHours,
			Message: fmt.Sprintf("worked %s hours, minimum is %s",
				actual.String(), minutesToHours(minMinutes).String()),
		}, true
	case allHaveMax && worked > maxMinutes:
		return Violation{
			Code:   ViolationRule,
			Detail: DetailAboveMaxHours,
			Message: fmt.Sprintf("worked %s hours, maximum is %s",
				actual.String(), minutesToHours(maxMinutes).String()),
		}, true
	}
	return Violation{}, false
}
