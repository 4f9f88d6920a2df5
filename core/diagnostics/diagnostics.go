// Package diagnostics explains, per leg, which hard constraint forced a
// negotiation lever. It only reads a compatibility index and a finished
// solution; it never searches.
package diagnostics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/solver"
)

// Lever names the relaxation an explanation is about.
type Lever string

const (
	LeverShiftLate    Lever = "shift_late"
	LeverShiftEarly   Lever = "shift_early"
	LeverSwap         Lever = "swap"
	LeverOutsource    Lever = "outsource"
	LeverSkip         Lever = "skip"
	LeverDutyOverride Lever = "duty_override"
	LeverUnscheduled  Lever = "unscheduled"
)

// Explanation ties one lever on one leg to the constraint that made the
// zero-cost outcome impossible. Constraint is empty when nothing blocked the
// zero-cost outcome and the lever was only picked as an alternative.
type Explanation struct {
	LegID      string            `json:"leg_id"`
	Lever      Lever             `json:"lever,omitempty"`
	Constraint compat.Constraint `json:"constraint,omitempty"`
	TailID     string            `json:"tail_id,omitempty"`
	OtherLegID string            `json:"other_leg_id,omitempty"`
	Message    string            `json:"message"`
}

func (e Explanation) String() string {
	return fmt.Sprintf("%s %s: %s", e.LegID, e.Lever, e.Message)
}

// Explain returns one explanation per lever used by sol, in leg ID order.
// Legs unknown to idx are ignored.
func Explain(idx *compat.Index, sol model.Solution) []Explanation {
	if idx == nil {
		return nil
	}
	v := newView(idx, sol)
	var out []Explanation
	for _, a := range sol.Assignments {
		i, ok := idx.LegIndex(a.LegID)
		if !ok {
			continue
		}
		switch a.Kind {
		case model.KindAssigned:
			k, ok := idx.TailIndex(a.TailID)
			if !ok {
				continue
			}
			if a.ShiftMinutes > 0 {
				out = append(out, v.lateShift(i, k, a))
			}
			if a.ShiftMinutes < 0 {
				out = append(out, v.earlyShift(i, k, a))
			}
			if a.Swap {
				out = append(out, v.swap(i, k, a))
			}
			if a.DutyOverride {
				out = append(out, v.dutyOverride(k, a))
			}
		case model.KindOutsourced:
			out = append(out, v.unplaced(i, a.LegID, LeverOutsource))
		case model.KindSkipped:
			e := v.unplaced(i, a.LegID, LeverSkip)
			if c := v.ceiling(i, a.LegID); c != nil {
				out = append(out, e, *c)
				continue
			}
			out = append(out, e)
		case model.KindUnscheduled:
			out = append(out, v.unplaced(i, a.LegID, LeverUnscheduled))
		}
	}
	return out
}

// ExplainInfeasible turns a solve error into per-leg explanations. It
// returns nil for errors that carry no leg information.
func ExplainInfeasible(idx *compat.Index, err error) []Explanation {
	var se *compat.StructuralInfeasibilityError
	if errors.As(err, &se) {
		out := make([]Explanation, 0, len(se.Legs))
		for _, l := range se.Legs {
			out = append(out, Explanation{LegID: l.LegID, Constraint: l.Constraint, Message: l.Detail})
		}
		return out
	}
	var nf *solver.NoFeasibleSolution
	if !errors.As(err, &nf) || idx == nil {
		return nil
	}
	v := newView(idx, model.Solution{})
	out := make([]Explanation, 0, len(nf.Legs))
	for _, id := range nf.Legs {
		i, ok := idx.LegIndex(id)
		if !ok {
			continue
		}
		e := Explanation{LegID: id}
		cs := idx.Candidates(i)
		switch {
		case len(cs) == 0:
			e.Constraint = compat.ConstraintNoCompatibleTail
			e.Message = "no compatible tail available in window"
		case len(idx.Conflicts(i)) > 0:
			j := idx.Conflicts(i)[0]
			e.Constraint = compat.ConstraintTimeConflict
			e.OtherLegID = idx.Leg(j).ID()
			if k, ok := v.sharedTail(i, j); ok {
				e.TailID = idx.Tail(k).ID()
				e.Message = fmt.Sprintf("time-window conflict with leg %s on tail %s", e.OtherLegID, e.TailID)
			} else {
				e.Message = fmt.Sprintf("time-window conflict with leg %s", e.OtherLegID)
			}
		default:
			e.Constraint = compat.ConstraintDutyCap
			e.TailID = idx.Tail(cs[0].Tail).ID()
			e.Message = fmt.Sprintf("duty cap exceeded on tail %s", e.TailID)
		}
		if nf.Excluded > 0 {
			e.Message += fmt.Sprintf(" (%d alternatives excluded)", nf.Excluded)
		}
		out = append(out, e)
	}
	return out
}

// view is a solution laid out per tail in index positions.
type view struct {
	idx    *compat.Index
	policy model.LeverPolicy
	sol    model.Solution
	// onTail[k] holds leg positions assigned to tail k by departure.
	onTail map[int][]placed
}

type placed struct {
	leg int
	dep int
}

func newView(idx *compat.Index, sol model.Solution) *view {
	v := &view{idx: idx, policy: idx.Policy(), sol: sol, onTail: make(map[int][]placed)}
	for tailID, as := range sol.ByTail() {
		k, ok := idx.TailIndex(tailID)
		if !ok {
			continue
		}
		for _, a := range as {
			i, ok := idx.LegIndex(a.LegID)
			if !ok {
				continue
			}
			v.onTail[k] = append(v.onTail[k], placed{leg: i, dep: idx.Minute(a.Departure)})
		}
	}
	return v
}

// neighbours returns the legs flown right before and right after leg i on
// tail k, or -1.
func (v *view) neighbours(i, k int) (int, int) {
	prev, next := -1, -1
	list := v.onTail[k]
	for p, pl := range list {
		if pl.leg != i {
			continue
		}
		if p > 0 {
			prev = list[p-1].leg
		}
		if p+1 < len(list) {
			next = list[p+1].leg
		}
	}
	return prev, next
}

func (v *view) departure(i, k int) int {
	for _, pl := range v.onTail[k] {
		if pl.leg == i {
			return pl.dep
		}
	}
	return v.idx.Earliest(i)
}

func (v *view) lateShift(i, k int, a model.Assignment) Explanation {
	idx := v.idx
	e := Explanation{LegID: a.LegID, Lever: LeverShiftLate, TailID: a.TailID}
	prev, _ := v.neighbours(i, k)
	if prev >= 0 && v.departure(prev, k)+idx.BlockMinutes(prev)+idx.Gap(prev, i) > idx.Latest(i) {
		e.Constraint = compat.ConstraintTimeConflict
		e.OtherLegID = idx.Leg(prev).ID()
		e.Message = fmt.Sprintf("time-window conflict with leg %s on tail %s; departs %d minutes late", e.OtherLegID, a.TailID, a.ShiftMinutes)
		return e
	}
	if from := idx.AvailableFrom(k); from != compat.OpenFrom && prev < 0 && from+idx.Initial(k, i) > idx.Latest(i) {
		e.Constraint = compat.ConstraintTailAvailability
		e.Message = fmt.Sprintf("tail %s not available before %s", a.TailID, idx.Time(from+idx.Initial(k, i)).Format("15:04"))
		return e
	}
	e.Message = fmt.Sprintf("late departure on tail %s chosen as an alternative", a.TailID)
	return e
}

func (v *view) earlyShift(i, k int, a model.Assignment) Explanation {
	idx := v.idx
	e := Explanation{LegID: a.LegID, Lever: LeverShiftEarly, TailID: a.TailID}
	_, next := v.neighbours(i, k)
	if next >= 0 && idx.Earliest(i)+idx.BlockMinutes(i)+idx.Gap(i, next) > v.departure(next, k) {
		e.Constraint = compat.ConstraintTimeConflict
		e.OtherLegID = idx.Leg(next).ID()
		e.Message = fmt.Sprintf("time-window conflict with leg %s on tail %s; departs %d minutes early", e.OtherLegID, a.TailID, -a.ShiftMinutes)
		return e
	}
	if to := idx.AvailableTo(k); to != compat.OpenTo && idx.Earliest(i)+idx.BlockMinutes(i) > to {
		e.Constraint = compat.ConstraintTailAvailability
		e.Message = fmt.Sprintf("tail %s not available after %s", a.TailID, idx.Time(to).Format("15:04"))
		return e
	}
	e.Message = fmt.Sprintf("early departure on tail %s chosen as an alternative", a.TailID)
	return e
}

func (v *view) swap(i, k int, a model.Assignment) Explanation {
	e := Explanation{LegID: a.LegID, Lever: LeverSwap, TailID: a.TailID}
	l := v.idx.Leg(i)
	c, _ := v.idx.Candidate(i, k)
	e.Constraint = c.Reason
	switch c.Reason {
	case compat.ConstraintCurrentTail:
		e.Message = fmt.Sprintf("moved off tail %s onto tail %s", l.CurrentTail(), a.TailID)
	default:
		e.Constraint = compat.ConstraintFleetClass
		e.Message = fmt.Sprintf("no %s tail free; flown by %s tail %s", l.FleetClass(), v.idx.Tail(k).FleetClass(), a.TailID)
	}
	return e
}

func (v *view) dutyOverride(k int, a model.Assignment) Explanation {
	t := v.idx.Tail(k)
	return Explanation{
		LegID:      a.LegID,
		Lever:      LeverDutyOverride,
		Constraint: compat.ConstraintDutyCap,
		TailID:     a.TailID,
		Message:    fmt.Sprintf("duty cap of %d minutes exceeded on tail %s (%d block minutes)", t.DutyCapMinutes(), a.TailID, v.duty(k)),
	}
}

func (v *view) duty(k int) int {
	total := 0
	for _, pl := range v.onTail[k] {
		total += v.idx.BlockMinutes(pl.leg)
	}
	return total
}

// unplaced explains why leg i is not flown by the fleet: the first candidate
// tail, in tail order, that a hard constraint rules out.
func (v *view) unplaced(i int, legID string, lever Lever) Explanation {
	e := Explanation{LegID: legID, Lever: lever}
	cs := v.idx.Candidates(i)
	if len(cs) == 0 {
		e.Constraint = compat.ConstraintNoCompatibleTail
		e.Message = "no compatible tail available in window"
		return e
	}
	for _, c := range cs {
		if b, ok := v.blocker(i, c.Tail); ok {
			b.LegID, b.Lever = legID, lever
			return b
		}
	}
	e.TailID = v.idx.Tail(cs[0].Tail).ID()
	e.Message = fmt.Sprintf("placing it on tail %s costs more", e.TailID)
	return e
}

// blocker checks whether the legs already on tail k leave room for leg i.
func (v *view) blocker(i, k int) (Explanation, bool) {
	idx := v.idx
	tailID := idx.Tail(k).ID()
	e := Explanation{TailID: tailID}
	t := idx.Tail(k)
	if d := v.duty(k) + idx.BlockMinutes(i); d > t.DutyCapMinutes()+v.policy.DutyTolerance() {
		e.Constraint = compat.ConstraintDutyCap
		e.Message = fmt.Sprintf("duty cap exceeded on tail %s (%d of %d minutes)", tailID, d, t.DutyCapMinutes())
		return e, true
	}

	lo, hi := idx.DepartureRange(i)
	if from := idx.AvailableFrom(k); from != compat.OpenFrom && from+idx.Initial(k, i) > hi {
		e.Constraint = compat.ConstraintTailAvailability
		e.Message = fmt.Sprintf("tail %s not available in window", tailID)
		return e, true
	}
	if to := idx.AvailableTo(k); to != compat.OpenTo && lo+idx.BlockMinutes(i) > to {
		e.Constraint = compat.ConstraintTailAvailability
		e.Message = fmt.Sprintf("tail %s not available in window", tailID)
		return e, true
	}

	list := v.onTail[k]
	if len(list) == 0 {
		return e, false
	}
	for _, pl := range list {
		if !v.fitsAround(i, pl) {
			e.Constraint = compat.ConstraintTimeConflict
			e.OtherLegID = idx.Leg(pl.leg).ID()
			e.Message = fmt.Sprintf("time-window conflict with leg %s on tail %s", e.OtherLegID, tailID)
			return e, true
		}
	}
	if v.gapFor(i, k, lo, hi) {
		return e, false
	}
	// no single leg blocks but the tail has no free slot
	j := sort.Search(len(list), func(p int) bool { return list[p].dep >= lo }) // first leg at or after the window
	if j == len(list) {
		j--
	}
	e.Constraint = compat.ConstraintTimeConflict
	e.OtherLegID = idx.Leg(list[j].leg).ID()
	e.Message = fmt.Sprintf("no free slot on tail %s around leg %s", tailID, e.OtherLegID)
	return e, true
}

// fitsAround reports whether leg i can depart inside its shifted window
// either before or after the placed leg.
func (v *view) fitsAround(i int, pl placed) bool {
	idx := v.idx
	lo, hi := idx.DepartureRange(i)
	before := lo+idx.BlockMinutes(i)+idx.Gap(i, pl.leg) <= pl.dep
	after := pl.dep+idx.BlockMinutes(pl.leg)+idx.Gap(pl.leg, i) <= hi
	return before || after
}

// gapFor reports whether some slot between consecutive legs on tail k fits
// leg i with a departure in [lo, hi].
func (v *view) gapFor(i, k, lo, hi int) bool {
	idx := v.idx
	list := v.onTail[k]
	block := idx.BlockMinutes(i)
	for p := 0; p <= len(list); p++ {
		start := lo
		if p > 0 {
			prev := list[p-1]
			start = max(start, prev.dep+idx.BlockMinutes(prev.leg)+idx.Gap(prev.leg, i))
		} else if from := idx.AvailableFrom(k); from != compat.OpenFrom {
			start = max(start, from+idx.Initial(k, i))
		}
		if start > hi {
			continue
		}
		if p < len(list) && start+block+idx.Gap(i, list[p].leg) > list[p].dep {
			continue
		}
		return true
	}
	return false
}

// sharedTail returns the first tail both legs can fly.
func (v *view) sharedTail(i, j int) (int, bool) {
	for _, c := range v.idx.Candidates(i) {
		if _, ok := v.idx.Candidate(j, c.Tail); ok {
			return c.Tail, true
		}
	}
	return 0, false
}

// ceiling reports the outsourcing ceiling when it is what turned an
// outsourcing into a skip.
func (v *view) ceiling(i int, legID string) *Explanation {
	o := v.policy.Outsource
	if !v.idx.OutsourceAllowed(i) || o.Ceiling <= 0 {
		return nil
	}
	spent := 0.0
	for _, a := range v.sol.Assignments {
		if a.Kind == model.KindOutsourced {
			spent += a.Cost
		}
	}
	if spent+o.Cost <= o.Ceiling+1e-9 {
		return nil
	}
	return &Explanation{
		LegID:      legID,
		Lever:      LeverSkip,
		Constraint: compat.ConstraintOutsourceCeiling,
		Message:    fmt.Sprintf("outsourcing spend %.2f would exceed ceiling %.2f", spent+o.Cost, o.Ceiling),
	}
}
