// Package solver implements the search kernel: a deterministic depth-first
// branch-and-bound over per-leg branches (assign to a tail, outsource, skip,
// leave unscheduled).
//
// Legs are visited in the canonical index order. Assigning a leg picks a
// tail, a position in that tail's flying order and a departure band: the
// on-time window or one shift bucket late or early. A tail's order is
// feasible when earliest-start timing keeps every leg inside its band with
// turn and reposition time between consecutive legs, so any order a tail can
// fly is reachable. Departures are fixed once the search ends. Branches are
// tried by ascending cost, then tail ID, so the first incumbent of a given
// cost is the tie-break winner and later ones only replace it on strict
// improvement.
//
// The bound is the running cost plus the cheapest conceivable branch of every
// remaining leg. An LP relaxation of the whole instance (bound.go) can prove
// an incumbent optimal and stop the search early.
package solver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/logger"
	"github.com/kilianp07/negsched/core/model"
)

const eps = 1e-9

// checkEvery is the number of nodes between two deadline and context checks.
var checkEvery int64 = 1024

// Options bound one kernel run.
type Options struct {
	// Budget is the wall-clock budget; zero leaves only ctx to stop the search.
	Budget time.Duration
	// NoGoods are signatures the search must not return again.
	NoGoods []model.Signature
	// DisableLPBound skips the LP relaxation.
	DisableLPBound bool
}

// Kernel solves one instance. It holds no per-solve state and is safe for
// concurrent use.
type Kernel struct {
	log logger.Logger
}

// NewKernel returns a kernel logging through log; nil disables logging.
func NewKernel(log logger.Logger) *Kernel {
	return &Kernel{log: logger.OrNop(log)}
}

// band is a departure interval of one leg priced by a single shift bucket.
// Bucket is signed: negative for early buckets, zero on time.
type band struct {
	lo, hi int
	bucket int
	cost   float64
}

// legBands lists the on-time window of leg i followed by one band per shift
// bucket and direction, clipped to the leg's shift limits.
func legBands(idx *compat.Index, i int) []band {
	earliest, latest := idx.Earliest(i), idx.Latest(i)
	lateCap, earlyCap := idx.LateCap(i), idx.EarlyCap(i)
	out := []band{{lo: earliest, hi: latest}}
	prev := 0
	for _, b := range idx.Policy().ShiftBuckets {
		if lateCap > prev {
			out = append(out, band{lo: latest + prev + 1, hi: latest + min(b.Minutes, lateCap), bucket: b.Minutes, cost: b.Cost})
		}
		if earlyCap > prev {
			out = append(out, band{lo: earliest - min(b.Minutes, earlyCap), hi: earliest - prev - 1, bucket: -b.Minutes, cost: b.Cost})
		}
		prev = b.Minutes
	}
	return out
}

type branch struct {
	kind     model.AssignmentKind
	tail     int
	pos      int
	lo, hi   int
	bucket   int
	swap     bool
	override bool
	cost     float64
}

func kindRank(k model.AssignmentKind) int {
	switch k {
	case model.KindAssigned:
		return 0
	case model.KindUnscheduled:
		return 1
	case model.KindOutsourced:
		return 2
	default:
		return 3
	}
}

// tailState is the flying order of one tail. Slices are never mutated once
// built, so a saved state restores by assignment.
type tailState struct {
	seq        []int
	// es holds the earliest feasible departure of every leg in seq.
	es         []int
	duty       int
	overridden bool
}

type engine struct {
	ctx    context.Context
	idx    *compat.Index
	policy model.LeverPolicy
	n      int

	bands      [][]band
	tails      []tailState
	choice     []branch
	cost       float64
	outsourced float64
	suffix     []float64
	idOrder    []int
	noGoods    map[model.Signature]struct{}

	best      []branch
	bestSeq   [][]int
	bestCost  float64
	found     bool
	rootBound float64
	proven    bool

	useDeadline bool
	deadline    time.Time
	nodes       int64
	stopped     bool

	deadEnds map[int]struct{}
}

// Solve returns the cheapest solution found within the budget. It returns
// *NoFeasibleSolution when the search space holds no admissible solution and
// ErrSearchBudgetExceeded when the budget expired before any was found.
func (k *Kernel) Solve(ctx context.Context, idx *compat.Index, opts Options) (model.Solution, error) {
	start := time.Now()
	e := newEngine(ctx, idx, opts)
	if opts.Budget > 0 {
		e.useDeadline = true
		e.deadline = start.Add(opts.Budget)
	}
	e.rootBound = e.suffix[0]
	if !opts.DisableLPBound && e.n > 0 && !math.IsInf(e.rootBound, 1) {
		if lb, ok := lowerBound(idx, e.rootBound); ok {
			e.rootBound = lb
		} else {
			k.log.Debugf("lp relaxation unavailable, using per-leg bound %.2f", e.rootBound)
		}
	}

	if ctx.Err() != nil {
		e.stopped = true
	} else {
		e.search(0)
	}

	elapsed := time.Since(start)
	nodesExplored.Add(float64(e.nodes))
	status := "infeasible"
	defer func() {
		solveDuration.WithLabelValues(status).Observe(elapsed.Seconds())
		solvesTotal.WithLabelValues(status).Inc()
	}()

	if !e.found {
		if e.stopped {
			status = "budget_exceeded"
			if err := ctx.Err(); err != nil {
				return model.Solution{}, fmt.Errorf("%w: %w", ErrSearchBudgetExceeded, err)
			}
			return model.Solution{}, ErrSearchBudgetExceeded
		}
		nf := &NoFeasibleSolution{Excluded: len(e.noGoods)}
		for i := range e.deadEnds {
			nf.Legs = append(nf.Legs, idx.Leg(i).ID())
		}
		sort.Strings(nf.Legs)
		return model.Solution{}, nf
	}

	st := model.StatusOptimal
	if e.stopped && !e.proven && e.bestCost > e.rootBound+1e-6 {
		st = model.StatusBudgetExceeded
	}
	status = string(st)
	sol := model.NewSolution(e.assignments(e.best, e.departures()), st)
	sol.LowerBound = math.Min(e.rootBound, sol.Cost)
	sol.Stats = model.SearchStats{Nodes: e.nodes, Elapsed: elapsed}
	k.log.Debugw("kernel solve finished", map[string]any{
		"legs":        e.n,
		"tails":       len(idx.Tails()),
		"cost":        sol.Cost,
		"lower_bound": sol.LowerBound,
		"status":      status,
		"nodes":       e.nodes,
		"no_goods":    len(e.noGoods),
		"elapsed_ms":  elapsed.Milliseconds(),
	})
	return sol, nil
}

func newEngine(ctx context.Context, idx *compat.Index, opts Options) *engine {
	n := len(idx.Legs())
	e := &engine{
		ctx:      ctx,
		idx:      idx,
		policy:   idx.Policy(),
		n:        n,
		bands:    make([][]band, n),
		tails:    make([]tailState, len(idx.Tails())),
		choice:   make([]branch, n),
		suffix:   make([]float64, n+1),
		bestSeq:  make([][]int, len(idx.Tails())),
		bestCost: math.Inf(1),
		deadEnds: make(map[int]struct{}),
	}
	for i := n - 1; i >= 0; i-- {
		e.suffix[i] = e.suffix[i+1] + idx.MinCost(i)
		e.bands[i] = legBands(idx, i)
	}
	e.idOrder = make([]int, n)
	for i := range e.idOrder {
		e.idOrder[i] = i
	}
	sort.Slice(e.idOrder, func(a, b int) bool {
		return idx.Leg(e.idOrder[a]).ID() < idx.Leg(e.idOrder[b]).ID()
	})
	if len(opts.NoGoods) > 0 {
		e.noGoods = make(map[model.Signature]struct{}, len(opts.NoGoods))
		for _, s := range opts.NoGoods {
			e.noGoods[s] = struct{}{}
		}
	}
	return e
}

// checkStop performs a sparse deadline and cancellation test.
func (e *engine) checkStop() bool {
	if e.stopped {
		return true
	}
	e.nodes++
	if e.nodes%checkEvery != 0 {
		return false
	}
	if e.ctx.Err() != nil || (e.useDeadline && time.Now().After(e.deadline)) {
		e.stopped = true
	}
	return e.stopped
}

func (e *engine) search(i int) {
	if e.proven || e.checkStop() {
		return
	}
	if i == e.n {
		e.leaf()
		return
	}
	if e.found && e.cost+e.suffix[i] >= e.bestCost-eps {
		return
	}
	branches := e.branches(i)
	if len(branches) == 0 {
		e.deadEnds[i] = struct{}{}
		return
	}
	for _, b := range branches {
		if e.found && e.cost+b.cost+e.suffix[i+1] >= e.bestCost-eps {
			// branches are sorted by cost
			break
		}
		saved := e.apply(i, b)
		e.search(i + 1)
		e.undo(i, b, saved)
		if e.proven || e.stopped {
			return
		}
	}
}

func (e *engine) leaf() {
	if e.noGoods != nil {
		if _, banned := e.noGoods[model.SignatureOf(e.assignments(e.choice, nil))]; banned {
			return
		}
	}
	if e.found && e.cost >= e.bestCost-eps {
		return
	}
	e.found = true
	e.bestCost = e.cost
	e.best = append(e.best[:0], e.choice...)
	for k := range e.tails {
		e.bestSeq[k] = e.tails[k].seq
	}
	if e.bestCost <= e.rootBound+1e-6 {
		e.proven = true
	}
}

func (e *engine) apply(i int, b branch) tailState {
	e.choice[i] = b
	e.cost += b.cost
	if b.kind == model.KindOutsourced {
		e.outsourced += b.cost
	}
	if b.kind != model.KindAssigned {
		return tailState{}
	}
	st := e.tails[b.tail]
	seq, es := e.insert(b.tail, i, b.pos)
	e.tails[b.tail] = tailState{
		seq:        seq,
		es:         es,
		duty:       st.duty + e.idx.BlockMinutes(i),
		overridden: st.overridden || b.override,
	}
	return st
}

func (e *engine) undo(i int, b branch, saved tailState) {
	e.cost -= b.cost
	if b.kind == model.KindOutsourced {
		e.outsourced -= b.cost
	}
	if b.kind == model.KindAssigned {
		e.tails[b.tail] = saved
	}
	e.choice[i] = branch{}
}

// ready returns the earliest minute leg j can leave on tail k after leg prev
// departed at dep. A negative prev means j is the tail's first leg.
func (e *engine) ready(k, prev, dep, j int) int {
	if prev < 0 {
		if from := e.idx.AvailableFrom(k); from != compat.OpenFrom {
			return from + e.idx.Initial(k, j)
		}
		return compat.OpenFrom
	}
	return dep + e.idx.BlockMinutes(prev) + e.idx.Gap(prev, j)
}

// fits reports whether leg i, departing inside [lo, hi], can be inserted at
// position pos of tail k. The legs after it may slide later inside their own
// bands; earliest-start timing of the new order decides.
func (e *engine) fits(k, i, pos, lo, hi int) bool {
	st := &e.tails[k]
	prev, dep := -1, 0
	if pos > 0 {
		prev, dep = st.seq[pos-1], st.es[pos-1]
	}
	dep = max(lo, e.ready(k, prev, dep, i))
	if dep > hi {
		return false
	}
	prev = i
	for p := pos; p < len(st.seq); p++ {
		j := st.seq[p]
		d := max(e.choice[j].lo, e.ready(k, prev, dep, j))
		if d > e.choice[j].hi {
			return false
		}
		if d == st.es[p] {
			// the rest of the sequence keeps its timing
			return true
		}
		prev, dep = j, d
	}
	to := e.idx.AvailableTo(k)
	return to == compat.OpenTo || dep+e.idx.BlockMinutes(prev) <= to
}

// insert returns tail k's sequence with leg i at position pos and the
// recomputed earliest starts. choice[i] must already hold the branch.
func (e *engine) insert(k, i, pos int) ([]int, []int) {
	st := e.tails[k]
	seq := make([]int, 0, len(st.seq)+1)
	seq = append(seq, st.seq[:pos]...)
	seq = append(seq, i)
	seq = append(seq, st.seq[pos:]...)
	es := make([]int, len(seq))
	copy(es, st.es[:pos])
	prev, dep := -1, 0
	if pos > 0 {
		prev, dep = seq[pos-1], es[pos-1]
	}
	for p := pos; p < len(seq); p++ {
		j := seq[p]
		dep = max(e.choice[j].lo, e.ready(k, prev, dep, j))
		es[p] = dep
		prev = j
	}
	return seq, es
}

// branches lists the admissible branches of leg i in search order.
func (e *engine) branches(i int) []branch {
	var out []branch
	for _, c := range e.idx.Candidates(i) {
		out = e.tailBranches(out, i, c)
	}
	leg := e.idx.Leg(i)
	if leg.Mandatory() {
		if o := e.policy.Outsource; e.idx.OutsourceAllowed(i) && (o.Ceiling == 0 || e.outsourced+o.Cost <= o.Ceiling+eps) {
			out = append(out, branch{kind: model.KindOutsourced, tail: -1, cost: o.Cost})
		}
		if s := e.policy.Skip; s.Enabled {
			out = append(out, branch{kind: model.KindSkipped, tail: -1, cost: s.Cost})
		}
	} else {
		out = append(out, branch{kind: model.KindUnscheduled, tail: -1})
	}
	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.cost != y.cost {
			return x.cost < y.cost
		}
		if kindRank(x.kind) != kindRank(y.kind) {
			return kindRank(x.kind) < kindRank(y.kind)
		}
		if x.tail != y.tail {
			return x.tail < y.tail
		}
		if x.lo != y.lo {
			return x.lo < y.lo
		}
		return x.pos < y.pos
	})
	return out
}

// tailBranches appends one branch per band of leg i and per position in
// candidate tail c's flying order that admits it.
func (e *engine) tailBranches(out []branch, i int, c compat.Candidate) []branch {
	k := c.Tail
	st := e.tails[k]

	dutyCap := e.idx.Tail(k).DutyCapMinutes()
	duty := st.duty + e.idx.BlockMinutes(i)
	override := false
	if duty > dutyCap {
		if duty > dutyCap+e.policy.DutyTolerance() {
			return out
		}
		override = !st.overridden
	}
	base := 0.0
	if c.Swap {
		base += e.policy.Swap.Cost
	}
	if override {
		base += e.policy.DutyOverride.Cost
	}

	for _, bd := range e.bands[i] {
		for pos := 0; pos <= len(st.seq); pos++ {
			if !e.fits(k, i, pos, bd.lo, bd.hi) {
				continue
			}
			out = append(out, branch{
				kind: model.KindAssigned, tail: k, pos: pos, lo: bd.lo, hi: bd.hi, bucket: bd.bucket,
				swap: c.Swap, override: override, cost: base + bd.cost,
			})
		}
	}
	return out
}

// departures times every assigned leg of the incumbent. Each tail keeps the
// searched order and bands; a leg leaves as close to its target as its
// neighbours allow: the preferred time on time, the window edge when shifted.
func (e *engine) departures() []int {
	idx := e.idx
	deps := make([]int, e.n)
	for k, seq := range e.bestSeq {
		if len(seq) == 0 {
			continue
		}
		ls := make([]int, len(seq))
		for p := len(seq) - 1; p >= 0; p-- {
			j := seq[p]
			v := e.best[j].hi
			if p == len(seq)-1 {
				if to := idx.AvailableTo(k); to != compat.OpenTo {
					v = min(v, to-idx.BlockMinutes(j))
				}
			} else {
				v = min(v, ls[p+1]-idx.BlockMinutes(j)-idx.Gap(j, seq[p+1]))
			}
			ls[p] = v
		}
		prev, dep := -1, 0
		for p, j := range seq {
			b := e.best[j]
			lo := max(b.lo, e.ready(k, prev, dep, j))
			dep = min(max(e.target(j, b), lo), ls[p])
			deps[j] = dep
			prev = j
		}
	}
	return deps
}

func (e *engine) target(i int, b branch) int {
	switch {
	case b.bucket > 0:
		return b.lo
	case b.bucket < 0:
		return b.hi
	default:
		return e.idx.Preferred(i)
	}
}

// assignments converts branches held in canonical order into assignments
// ordered by leg ID. Without deps the departures stay zero, which is enough
// for signatures.
func (e *engine) assignments(bs []branch, deps []int) []model.Assignment {
	out := make([]model.Assignment, 0, e.n)
	for _, i := range e.idOrder {
		b := bs[i]
		a := model.Assignment{LegID: e.idx.Leg(i).ID(), Kind: b.kind, Cost: b.cost}
		if b.kind == model.KindAssigned {
			a.TailID = e.idx.Tail(b.tail).ID()
			a.ShiftBucket = b.bucket
			a.Swap = b.swap
			a.DutyOverride = b.override
			if deps != nil {
				dep := deps[i]
				a.Departure = e.idx.Time(dep)
				switch {
				case dep > e.idx.Latest(i):
					a.ShiftMinutes = dep - e.idx.Latest(i)
				case dep < e.idx.Earliest(i):
					a.ShiftMinutes = dep - e.idx.Earliest(i)
				}
			}
		}
		out = append(out, a)
	}
	return out
}
