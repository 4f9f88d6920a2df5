// Package compat precomputes, once per solve, which tails can fly which legs
// and which leg pairs can collide on a shared tail. The resulting Index is
// read-only and shared by the solver kernel, the enumerator and diagnostics.
package compat

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/negsched/core/model"
)

// DefaultTurnBufferMinutes is the minimum idle time between two legs flown
// by the same tail when no reposition is needed.
const DefaultTurnBufferMinutes = 30

// Open bounds for tail availability expressed in index minutes.
const (
	OpenFrom = math.MinInt32
	OpenTo   = math.MaxInt32
)

// Options tune the index.
type Options struct {
	TurnBufferMinutes int
	Airports          Airports
}

// Candidate is one tail able to fly a leg.
type Candidate struct {
	Tail int
	Swap bool
	// Reason explains why Swap is set: fleet_class or current_tail.
	Reason Constraint
}

// Index is the read-only compatibility and conflict lookup for one solve.
// Legs are held in canonical order (latest departure, earliest departure,
// ID) and tails in ID order, so results never depend on input ordering.
type Index struct {
	legs   []model.Leg
	tails  []model.Tail
	policy model.LeverPolicy
	turn   int
	epoch  time.Time

	legPos  map[string]int
	tailPos map[string]int

	earliest  []int
	latest    []int
	preferred []int
	lateCap   []int
	earlyCap  []int
	block     []int
	from      []int
	to        []int

	candidates [][]Candidate
	// gap[i*n+j] is the idle time needed between the arrival of leg i and
	// the departure of leg j on one tail.
	gap []int
	// initial[k*n+i] is the reposition from tail k's location to leg i.
	initial  []int
	conflict [][]int
	minCost  []float64

	infeasible []StructuralInfeasibility
}

// Build validates the policy, rejects duplicate identifiers and precomputes
// the index.
func Build(legs []model.Leg, tails []model.Tail, policy model.LeverPolicy, opts Options) (*Index, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if opts.TurnBufferMinutes < 0 {
		return nil, fmt.Errorf("turn buffer must not be negative")
	}
	idx := &Index{
		legs:    append([]model.Leg(nil), legs...),
		tails:   append([]model.Tail(nil), tails...),
		policy:  policy,
		turn:    opts.TurnBufferMinutes,
		legPos:  make(map[string]int, len(legs)),
		tailPos: make(map[string]int, len(tails)),
	}
	sort.Slice(idx.legs, func(i, j int) bool {
		a, b := idx.legs[i], idx.legs[j]
		if !a.LatestDeparture().Equal(b.LatestDeparture()) {
			return a.LatestDeparture().Before(b.LatestDeparture())
		}
		if !a.EarliestDeparture().Equal(b.EarliestDeparture()) {
			return a.EarliestDeparture().Before(b.EarliestDeparture())
		}
		return a.ID() < b.ID()
	})
	sort.Slice(idx.tails, func(i, j int) bool { return idx.tails[i].ID() < idx.tails[j].ID() })
	for i, l := range idx.legs {
		if _, dup := idx.legPos[l.ID()]; dup {
			return nil, &model.ValidationError{Record: "leg", ID: l.ID(), Field: "id", Reason: "duplicate identifier"}
		}
		idx.legPos[l.ID()] = i
	}
	for k, t := range idx.tails {
		if _, dup := idx.tailPos[t.ID()]; dup {
			return nil, &model.ValidationError{Record: "tail", ID: t.ID(), Field: "id", Reason: "duplicate identifier"}
		}
		idx.tailPos[t.ID()] = k
	}
	idx.epoch = idx.computeEpoch()
	idx.buildTimes()
	idx.buildGaps(opts.Airports)
	idx.buildCandidates()
	idx.buildConflicts()
	idx.buildMinCost()
	return idx, nil
}

func (x *Index) computeEpoch() time.Time {
	var e time.Time
	for _, l := range x.legs {
		if e.IsZero() || l.EarliestDeparture().Before(e) {
			e = l.EarliestDeparture()
		}
	}
	if e.IsZero() {
		e = time.Unix(0, 0).UTC()
	}
	return e.Truncate(24 * time.Hour)
}

func (x *Index) buildTimes() {
	n, m := len(x.legs), len(x.tails)
	x.earliest, x.latest, x.block = make([]int, n), make([]int, n), make([]int, n)
	x.preferred, x.lateCap, x.earlyCap = make([]int, n), make([]int, n), make([]int, n)
	for i, l := range x.legs {
		x.earliest[i] = x.Minute(l.EarliestDeparture())
		x.latest[i] = x.Minute(l.LatestDeparture())
		x.preferred[i] = x.Minute(l.PreferredDeparture())
		x.block[i] = l.BlockMinutes()
		x.lateCap[i] = shiftCap(x.policy.LateShifts(), x.policy.MaxShift(), l.LateShiftCap())
		x.earlyCap[i] = shiftCap(x.policy.EarlyShifts(), x.policy.MaxShift(), l.EarlyShiftCap())
	}
	x.from, x.to = make([]int, m), make([]int, m)
	for k, t := range x.tails {
		x.from[k], x.to[k] = OpenFrom, OpenTo
		if !t.AvailableFrom().IsZero() {
			x.from[k] = x.Minute(t.AvailableFrom())
		}
		if !t.AvailableTo().IsZero() {
			x.to[k] = x.Minute(t.AvailableTo())
		}
	}
}

// shiftCap combines the policy limit of one direction with a leg's own.
func shiftCap(enabled bool, policyMax, legCap int) int {
	if !enabled {
		return 0
	}
	if legCap != model.NoShiftCap && legCap < policyMax {
		return legCap
	}
	return policyMax
}

func (x *Index) buildGaps(airports Airports) {
	n, m := len(x.legs), len(x.tails)
	x.gap = make([]int, n*n)
	for i, a := range x.legs {
		for j, b := range x.legs {
			if i == j {
				continue
			}
			x.gap[i*n+j] = x.turn + airports.RepositionMinutes(a.Destination(), b.Origin(), a.FleetClass())
		}
	}
	x.initial = make([]int, m*n)
	for k, t := range x.tails {
		for i, l := range x.legs {
			x.initial[k*n+i] = airports.RepositionMinutes(t.Location(), l.Origin(), t.FleetClass())
		}
	}
}

func (x *Index) buildCandidates() {
	x.candidates = make([][]Candidate, len(x.legs))
	for i, l := range x.legs {
		pinned := -1
		if cur, ok := x.tailPos[l.CurrentTail()]; ok && x.tails[cur].FleetClass() == l.FleetClass() {
			pinned = cur
		}
		var reasons []Constraint
		for k := range x.tails {
			c, reason, ok := x.candidate(i, k, pinned)
			if !ok {
				reasons = append(reasons, reason)
				continue
			}
			x.candidates[i] = append(x.candidates[i], c)
		}
		if len(x.candidates[i]) > 0 || !l.Mandatory() || x.OutsourceAllowed(i) || x.policy.Skip.Enabled {
			continue
		}
		x.infeasible = append(x.infeasible, x.explainNoCandidate(l, reasons))
	}
	sort.Slice(x.infeasible, func(a, b int) bool { return x.infeasible[a].LegID < x.infeasible[b].LegID })
}

// candidate decides whether tail k can fly leg i. The returned constraint
// names the blocking rule when it cannot.
func (x *Index) candidate(i, k, pinned int) (Candidate, Constraint, bool) {
	l, t := x.legs[i], x.tails[k]
	c := Candidate{Tail: k}
	switch {
	case t.FleetClass() == l.FleetClass():
		if pinned >= 0 && pinned != k {
			if !x.SwapAllowed(i) {
				return c, ConstraintCurrentTail, false
			}
			c.Swap, c.Reason = true, ConstraintCurrentTail
		}
	case x.SwapAllowed(i) && t.CanSwapFor(l.FleetClass()):
		c.Swap, c.Reason = true, ConstraintFleetClass
	default:
		return c, ConstraintFleetClass, false
	}
	if t.Seats() > 0 && l.Passengers() > t.Seats() {
		return c, ConstraintSeatCapacity, false
	}
	if x.block[i] > t.DutyCapMinutes()+x.policy.DutyTolerance() {
		return c, ConstraintDutyCap, false
	}
	lo, hi := x.DepartureRange(i)
	if x.from[k] != OpenFrom && x.from[k]+x.Initial(k, i) > hi {
		return c, ConstraintTailAvailability, false
	}
	if x.to[k] != OpenTo && lo+x.block[i] > x.to[k] {
		return c, ConstraintTailAvailability, false
	}
	return c, "", true
}

func (x *Index) explainNoCandidate(l model.Leg, reasons []Constraint) StructuralInfeasibility {
	si := StructuralInfeasibility{LegID: l.ID(), FleetClass: l.FleetClass(), Constraint: ConstraintNoCompatibleTail}
	if len(x.tails) == 0 {
		si.Detail = "no tails available"
		return si
	}
	// report the most specific rule that rejected a tail of the right class
	best := ConstraintFleetClass
	rank := map[Constraint]int{ConstraintFleetClass: 0, ConstraintCurrentTail: 1, ConstraintSeatCapacity: 2, ConstraintDutyCap: 3, ConstraintTailAvailability: 4}
	for _, r := range reasons {
		if rank[r] > rank[best] {
			best = r
		}
	}
	switch best {
	case ConstraintFleetClass:
		si.Detail = fmt.Sprintf("no tail of class %s and no swap-eligible tail", l.FleetClass())
	case ConstraintCurrentTail:
		si.Detail = fmt.Sprintf("pinned to tail %s which cannot fly it and swaps are disabled", l.CurrentTail())
	case ConstraintSeatCapacity:
		si.Detail = fmt.Sprintf("no compatible tail seats %d passengers", l.Passengers())
	case ConstraintDutyCap:
		si.Detail = fmt.Sprintf("block of %d minutes exceeds every compatible tail's duty cap", l.BlockMinutes())
	case ConstraintTailAvailability:
		si.Detail = "no compatible tail available in window"
	}
	si.Detail += "; outsourcing and skip disabled"
	return si
}

func (x *Index) buildConflicts() {
	n := len(x.legs)
	x.conflict = make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !x.shareTail(i, j) {
				continue
			}
			if x.fitsOnTime(i, j) || x.fitsOnTime(j, i) {
				continue
			}
			x.conflict[i] = append(x.conflict[i], j)
			x.conflict[j] = append(x.conflict[j], i)
		}
	}
	for i := range x.conflict {
		sort.Ints(x.conflict[i])
	}
}

// fitsOnTime reports whether leg j can follow leg i on one tail with both
// departing inside their windows.
func (x *Index) fitsOnTime(i, j int) bool {
	return x.earliest[i]+x.block[i]+x.Gap(i, j) <= x.latest[j]
}

func (x *Index) shareTail(i, j int) bool {
	a, b := x.candidates[i], x.candidates[j]
	for p, q := 0, 0; p < len(a) && q < len(b); {
		switch {
		case a[p].Tail == b[q].Tail:
			return true
		case a[p].Tail < b[q].Tail:
			p++
		default:
			q++
		}
	}
	return false
}

func (x *Index) buildMinCost() {
	x.minCost = make([]float64, len(x.legs))
	for i, l := range x.legs {
		best := math.Inf(1)
		for _, c := range x.candidates[i] {
			cost := 0.0
			if c.Swap {
				cost = x.policy.Swap.Cost
			}
			best = math.Min(best, cost)
		}
		if x.OutsourceAllowed(i) {
			best = math.Min(best, x.policy.Outsource.Cost)
		}
		if x.policy.Skip.Enabled {
			best = math.Min(best, x.policy.Skip.Cost)
		}
		if !l.Mandatory() {
			best = 0
		}
		x.minCost[i] = best
	}
}

// Minute converts t into index minutes. Leg and tail times are validated to
// whole minutes; anything finer is truncated toward the epoch.
func (x *Index) Minute(t time.Time) int {
	return int(t.Sub(x.epoch) / time.Minute)
}

// Time converts index minutes back into a timestamp.
func (x *Index) Time(m int) time.Time {
	return x.epoch.Add(time.Duration(m) * time.Minute)
}

// DepartureRange returns the widest departure interval the policy and the
// leg's own shift limits allow for leg i.
func (x *Index) DepartureRange(i int) (int, int) {
	return x.earliest[i] - x.earlyCap[i], x.latest[i] + x.lateCap[i]
}

// Bucket returns the shift bucket covering a signed shift of leg i, honouring
// the leg's shift limits.
func (x *Index) Bucket(i, shift int) (model.ShiftBucket, bool) {
	if shift > x.lateCap[i] || -shift > x.earlyCap[i] {
		return model.ShiftBucket{}, false
	}
	return x.policy.Bucket(shift)
}

// SwapAllowed reports whether leg i may be flown by a tail other than its
// current one or of another class.
func (x *Index) SwapAllowed(i int) bool {
	return x.policy.Swap.Enabled && x.legs[i].SwapAllowed()
}

// OutsourceAllowed reports whether leg i may be outsourced.
func (x *Index) OutsourceAllowed(i int) bool {
	return x.policy.Outsource.Enabled && x.legs[i].OutsourceAllowed()
}

func (x *Index) Legs() []model.Leg            { return x.legs }
func (x *Index) Tails() []model.Tail          { return x.tails }
func (x *Index) Policy() model.LeverPolicy    { return x.policy }
func (x *Index) TurnBuffer() int              { return x.turn }
func (x *Index) Leg(i int) model.Leg          { return x.legs[i] }
func (x *Index) Tail(k int) model.Tail        { return x.tails[k] }
func (x *Index) Candidates(i int) []Candidate { return x.candidates[i] }
func (x *Index) Conflicts(i int) []int        { return x.conflict[i] }
func (x *Index) MinCost(i int) float64        { return x.minCost[i] }
func (x *Index) Earliest(i int) int           { return x.earliest[i] }
func (x *Index) Latest(i int) int             { return x.latest[i] }
func (x *Index) Preferred(i int) int          { return x.preferred[i] }
func (x *Index) LateCap(i int) int            { return x.lateCap[i] }
func (x *Index) EarlyCap(i int) int           { return x.earlyCap[i] }
func (x *Index) BlockMinutes(i int) int       { return x.block[i] }
func (x *Index) AvailableFrom(k int) int      { return x.from[k] }
func (x *Index) AvailableTo(k int) int        { return x.to[k] }
func (x *Index) Gap(i, j int) int             { return x.gap[i*len(x.legs)+j] }
func (x *Index) Initial(k, i int) int         { return x.initial[k*len(x.legs)+i] }

// Infeasible lists mandatory legs without any viable placement, by leg ID.
func (x *Index) Infeasible() []StructuralInfeasibility {
	return append([]StructuralInfeasibility(nil), x.infeasible...)
}

// Err returns a StructuralInfeasibilityError when any leg is infeasible.
func (x *Index) Err() error {
	if len(x.infeasible) == 0 {
		return nil
	}
	return &StructuralInfeasibilityError{Legs: x.Infeasible()}
}

// LegIndex returns the canonical position of a leg.
func (x *Index) LegIndex(id string) (int, bool) {
	i, ok := x.legPos[id]
	return i, ok
}

// TailIndex returns the position of a tail.
func (x *Index) TailIndex(id string) (int, bool) {
	k, ok := x.tailPos[id]
	return k, ok
}

// Candidate returns the candidate entry of tail k for leg i.
func (x *Index) Candidate(i, k int) (Candidate, bool) {
	cs := x.candidates[i]
	p := sort.Search(len(cs), func(p int) bool { return cs[p].Tail >= k })
	if p < len(cs) && cs[p].Tail == k {
		return cs[p], true
	}
	return Candidate{}, false
}

// Conflicting reports whether legs i and j cannot both depart on time on a
// shared tail.
func (x *Index) Conflicting(i, j int) bool {
	cs := x.conflict[i]
	p := sort.SearchInts(cs, j)
	return p < len(cs) && cs[p] == j
}
