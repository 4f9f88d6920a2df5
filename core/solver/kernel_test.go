package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/model"
)

var day = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

func mkLeg(t *testing.T, id, class string, earliest, latest time.Duration, block int) model.Leg {
	t.Helper()
	l, err := model.NewLeg(model.LegSpec{
		ID: id, Origin: "KTEB", Destination: "KPBI", FleetClass: class,
		EarliestDeparture: day.Add(earliest), LatestDeparture: day.Add(latest), BlockMinutes: block,
	})
	require.NoError(t, err)
	return l
}

func mkTail(t *testing.T, id, class string, dutyCap int, swaps ...string) model.Tail {
	t.Helper()
	tl, err := model.NewTail(model.TailSpec{ID: id, FleetClass: class, DutyCapMinutes: dutyCap, SwapClasses: swaps})
	require.NoError(t, err)
	return tl
}

func mkIndex(t *testing.T, legs []model.Leg, tails []model.Tail, p model.LeverPolicy) *compat.Index {
	t.Helper()
	p, err := model.NewLeverPolicy(p)
	require.NoError(t, err)
	idx, err := compat.Build(legs, tails, p, compat.Options{TurnBufferMinutes: 30})
	require.NoError(t, err)
	return idx
}

var shift30 = []model.ShiftBucket{{Minutes: 30, Cost: 1}}

// overlapping returns two class A legs on one tail: A departs 08:00 for an
// hour, B wants 09:15 but the tail is ready at 09:30.
func overlapping(t *testing.T) ([]model.Leg, []model.Tail) {
	return []model.Leg{
			mkLeg(t, "A", "A", 8*time.Hour, 8*time.Hour, 60),
			mkLeg(t, "B", "A", 9*time.Hour+15*time.Minute, 9*time.Hour+15*time.Minute, 60),
		}, []model.Tail{
			mkTail(t, "T1", "A", 600),
		}
}

// checkSound verifies turn times, duty caps and shift limits of an
// assignment against the index it was solved on.
func checkSound(t *testing.T, idx *compat.Index, sol model.Solution) {
	t.Helper()
	p := idx.Policy()
	require.Len(t, sol.Assignments, len(idx.Legs()))
	for tailID, list := range sol.ByTail() {
		k, ok := idx.TailIndex(tailID)
		require.True(t, ok)
		duty := 0
		for n, a := range list {
			i, ok := idx.LegIndex(a.LegID)
			require.True(t, ok)
			_, ok = idx.Candidate(i, k)
			assert.True(t, ok, "leg %s not compatible with %s", a.LegID, tailID)
			dep := idx.Minute(a.Departure)
			lo, hi := idx.DepartureRange(i)
			assert.GreaterOrEqual(t, dep, lo)
			assert.LessOrEqual(t, dep, hi)
			duty += idx.BlockMinutes(i)
			if n > 0 {
				prev := list[n-1]
				j, _ := idx.LegIndex(prev.LegID)
				assert.LessOrEqual(t, idx.Minute(prev.Departure)+idx.BlockMinutes(j)+idx.Gap(j, i), dep,
					"%s and %s overlap on %s", prev.LegID, a.LegID, tailID)
			}
		}
		assert.LessOrEqual(t, duty, idx.Tail(k).DutyCapMinutes()+p.DutyTolerance())
	}
	var total float64
	for _, a := range sol.Assignments {
		total += a.Cost
	}
	assert.InDelta(t, sol.Cost, total, 1e-9)
}

func TestSolveShiftsOneLegToRemoveOverlap(t *testing.T) {
	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{ShiftBuckets: shift30})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Equal(t, 1.0, sol.Cost)
	assert.True(t, sol.Optimal())

	a, _ := sol.Assignment("A")
	b, _ := sol.Assignment("B")
	assert.Equal(t, 0, a.ShiftMinutes)
	assert.Equal(t, 15, b.ShiftMinutes)
	assert.Equal(t, 30, b.ShiftBucket)
	assert.Equal(t, day.Add(9*time.Hour+30*time.Minute), b.Departure)
}

func TestSolveEarlyOnlyShiftsMoveFirstLeg(t *testing.T) {
	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{ShiftBuckets: shift30, ShiftDirection: model.ShiftEarly})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	a, _ := sol.Assignment("A")
	assert.Equal(t, -30, a.ShiftBucket)
	assert.Equal(t, 1.0, sol.Cost)
	// A leaves no earlier than B's 09:15 slot requires
	assert.Equal(t, day.Add(7*time.Hour+45*time.Minute), a.Departure)
	assert.Equal(t, -15, a.ShiftMinutes)
}

func TestSolveFliesLaterLegFirst(t *testing.T) {
	// X is free all day, Y is fixed at 10:00 for ten hours; X must go
	// before Y on the only tail even though Y closes first.
	legs := []model.Leg{
		mkLeg(t, "X", "A", 0, 20*time.Hour, 60),
		mkLeg(t, "Y", "A", 10*time.Hour, 10*time.Hour, 600),
	}
	idx := mkIndex(t, legs, []model.Tail{mkTail(t, "T1", "A", 720)}, model.LeverPolicy{
		Skip: model.Lever{Enabled: true, Cost: 100},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Zero(t, sol.Cost)
	assert.True(t, sol.Optimal())
	x, _ := sol.Assignment("X")
	y, _ := sol.Assignment("Y")
	assert.Equal(t, model.KindAssigned, x.Kind)
	assert.Equal(t, "T1", x.TailID)
	assert.Equal(t, day, x.Departure)
	assert.Equal(t, day.Add(10*time.Hour), y.Departure)
}

func TestSolveInsertsBeforePlacedLegByDelayingIt(t *testing.T) {
	// A closes first and sits at 08:00 when B is considered; B only fits
	// ahead of A if A slides to 09:00, which its window allows for free.
	legs := []model.Leg{
		mkLeg(t, "A", "A", 8*time.Hour, 10*time.Hour, 60),
		mkLeg(t, "B", "A", 7*time.Hour, 12*time.Hour, 90),
		mkLeg(t, "C", "A", 11*time.Hour, 11*time.Hour, 60),
	}
	idx := mkIndex(t, legs, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{
		Skip: model.Lever{Enabled: true, Cost: 100},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Zero(t, sol.Cost)
	for _, a := range sol.Assignments {
		assert.Equal(t, model.KindAssigned, a.Kind, a.LegID)
	}
	a, _ := sol.Assignment("A")
	b, _ := sol.Assignment("B")
	assert.Equal(t, day.Add(7*time.Hour), b.Departure)
	assert.Equal(t, day.Add(9*time.Hour), a.Departure)
}

func TestSolveHonoursLegLevers(t *testing.T) {
	late := 10
	b, err := model.NewLeg(model.LegSpec{
		ID: "B", Origin: "KTEB", Destination: "KPBI", FleetClass: "A",
		EarliestDeparture: day.Add(9*time.Hour + 15*time.Minute), LatestDeparture: day.Add(9*time.Hour + 15*time.Minute),
		BlockMinutes: 60, MaxLateShiftMinutes: &late,
	})
	require.NoError(t, err)
	no := false
	c, err := model.NewLeg(model.LegSpec{
		ID: "C", Origin: "KTEB", Destination: "KPBI", FleetClass: "Z",
		EarliestDeparture: day.Add(12 * time.Hour), LatestDeparture: day.Add(12 * time.Hour),
		BlockMinutes: 60, AllowOutsource: &no,
	})
	require.NoError(t, err)
	legs := []model.Leg{mkLeg(t, "A", "A", 8*time.Hour, 8*time.Hour, 60), b, c}
	idx := mkIndex(t, legs, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{
		ShiftBuckets: shift30,
		Outsource:    model.OutsourceLever{Enabled: true, Cost: 10},
		Skip:         model.Lever{Enabled: true, Cost: 30},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Equal(t, 31.0, sol.Cost)

	// B may not slip 15 minutes, so A leaves early instead
	a, _ := sol.Assignment("A")
	assert.Equal(t, -30, a.ShiftBucket)
	bb, _ := sol.Assignment("B")
	assert.Zero(t, bb.ShiftMinutes)
	cc, _ := sol.Assignment("C")
	assert.Equal(t, model.KindSkipped, cc.Kind)
}

func TestSolveDepartsAtPreferredTime(t *testing.T) {
	l, err := model.NewLeg(model.LegSpec{
		ID: "P", Origin: "KTEB", Destination: "KPBI", FleetClass: "A",
		EarliestDeparture: day.Add(8 * time.Hour), LatestDeparture: day.Add(9 * time.Hour),
		PreferredDeparture: day.Add(8*time.Hour + 40*time.Minute), BlockMinutes: 60,
	})
	require.NoError(t, err)
	idx := mkIndex(t, []model.Leg{l}, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	p, _ := sol.Assignment("P")
	assert.Equal(t, day.Add(8*time.Hour+40*time.Minute), p.Departure)
	assert.Zero(t, p.ShiftMinutes)
}

func TestSolveNoLeversNoFeasibleSolution(t *testing.T) {
	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{})

	_, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	var nf *NoFeasibleSolution
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"B"}, nf.Legs)
	assert.Contains(t, err.Error(), "cannot place legs B")
}

func TestSolveDutyCapSkipsOneLeg(t *testing.T) {
	legs := []model.Leg{
		mkLeg(t, "L1", "A", 6*time.Hour, 6*time.Hour, 60),
		mkLeg(t, "L2", "A", 9*time.Hour, 9*time.Hour, 60),
		mkLeg(t, "L3", "A", 12*time.Hour, 12*time.Hour, 60),
	}
	tails := []model.Tail{mkTail(t, "T1", "A", 150)}
	idx := mkIndex(t, legs, tails, model.LeverPolicy{
		ShiftBuckets: shift30,
		Skip:         model.Lever{Enabled: true, Cost: 10},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Equal(t, 10.0, sol.Cost)
	assert.True(t, sol.Optimal())
	kinds := map[model.AssignmentKind]int{}
	for _, a := range sol.Assignments {
		kinds[a.Kind]++
	}
	assert.Equal(t, 2, kinds[model.KindAssigned])
	assert.Equal(t, 1, kinds[model.KindSkipped])
	// the LP relaxation lets half a leg ride on the cap
	assert.InDelta(t, 5, sol.LowerBound, 1e-6)
}

func TestSolveDutyOverrideChargedOncePerTail(t *testing.T) {
	legs := []model.Leg{
		mkLeg(t, "L1", "A", 6*time.Hour, 6*time.Hour, 60),
		mkLeg(t, "L2", "A", 9*time.Hour, 9*time.Hour, 60),
		mkLeg(t, "L3", "A", 12*time.Hour, 12*time.Hour, 60),
		mkLeg(t, "L4", "A", 15*time.Hour, 15*time.Hour, 30),
	}
	tails := []model.Tail{mkTail(t, "T1", "A", 120)}
	idx := mkIndex(t, legs, tails, model.LeverPolicy{
		Skip:         model.Lever{Enabled: true, Cost: 10},
		DutyOverride: model.DutyOverride{Enabled: true, ToleranceMinutes: 90, Cost: 5},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, sol)
	assert.Equal(t, 5.0, sol.Cost)
	l3, _ := sol.Assignment("L3")
	l4, _ := sol.Assignment("L4")
	assert.True(t, l3.DutyOverride)
	assert.False(t, l4.DutyOverride)
	assert.Equal(t, model.KindAssigned, l4.Kind)
}

func TestSolveOutsourceCeiling(t *testing.T) {
	legs := []model.Leg{
		mkLeg(t, "L1", "B", 8*time.Hour, 8*time.Hour, 60),
		mkLeg(t, "L2", "B", 10*time.Hour, 10*time.Hour, 60),
	}
	idx := mkIndex(t, legs, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{
		Outsource: model.OutsourceLever{Enabled: true, Cost: 10, Ceiling: 15},
		Skip:      model.Lever{Enabled: true, Cost: 30},
	})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 40.0, sol.Cost)
	l1, _ := sol.Assignment("L1")
	l2, _ := sol.Assignment("L2")
	assert.Equal(t, model.KindOutsourced, l1.Kind)
	assert.Equal(t, model.KindSkipped, l2.Kind)
}

func TestSolveOptionalLegLeftUnscheduled(t *testing.T) {
	l, err := model.NewLeg(model.LegSpec{
		ID: "P1", Origin: "KTEB", Destination: "KHPN", FleetClass: "B", Intent: model.IntentPOS,
		EarliestDeparture: day.Add(8 * time.Hour), LatestDeparture: day.Add(9 * time.Hour), BlockMinutes: 30,
	})
	require.NoError(t, err)
	idx := mkIndex(t, []model.Leg{l}, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{})

	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	assert.Zero(t, sol.Cost)
	assert.Equal(t, model.KindUnscheduled, sol.Assignments[0].Kind)
}

func TestSolveEmptyInstance(t *testing.T) {
	idx := mkIndex(t, nil, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{})
	sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	assert.Empty(t, sol.Assignments)
	assert.True(t, sol.Optimal())
	assert.True(t, sol.Feasible)
}

func TestSolveHonoursNoGoods(t *testing.T) {
	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{ShiftBuckets: shift30})
	k := NewKernel(nil)

	first, err := k.Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	second, err := k.Solve(context.Background(), idx, Options{NoGoods: []model.Signature{first.Signature()}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Signature(), second.Signature())
	assert.GreaterOrEqual(t, second.Cost, first.Cost)
	checkSound(t, idx, second)

	// A early or B late are the only ways through without outsourcing
	a, _ := second.Assignment("A")
	assert.Equal(t, -30, a.ShiftBucket)
	assert.Equal(t, 1.0, second.Cost)

	_, err = k.Solve(context.Background(), idx, Options{NoGoods: []model.Signature{
		first.Signature(), second.Signature(),
	}})
	require.NoError(t, err)
}

func TestSolveExhaustedNoGoods(t *testing.T) {
	legs := []model.Leg{mkLeg(t, "A", "A", 8*time.Hour, 8*time.Hour, 60)}
	idx := mkIndex(t, legs, []model.Tail{mkTail(t, "T1", "A", 600)}, model.LeverPolicy{})
	k := NewKernel(nil)

	first, err := k.Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	_, err = k.Solve(context.Background(), idx, Options{NoGoods: []model.Signature{first.Signature()}})
	var nf *NoFeasibleSolution
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1, nf.Excluded)
	assert.Empty(t, nf.Legs)
}

func TestSolveSwapLeverNeverIncreasesCost(t *testing.T) {
	legs := []model.Leg{
		mkLeg(t, "L1", "CJ2", 8*time.Hour, 8*time.Hour, 60),
		mkLeg(t, "L2", "CJ2", 8*time.Hour, 8*time.Hour, 60),
	}
	tails := []model.Tail{mkTail(t, "T1", "CJ2", 600), mkTail(t, "T2", "CJ3", 600, "CJ2")}
	base := model.LeverPolicy{Outsource: model.OutsourceLever{Enabled: true, Cost: 20}}

	without, err := NewKernel(nil).Solve(context.Background(), mkIndex(t, legs, tails, base), Options{})
	require.NoError(t, err)
	assert.Equal(t, 20.0, without.Cost)

	withSwap := base
	withSwap.Swap = model.Lever{Enabled: true, Cost: 4}
	idx := mkIndex(t, legs, tails, withSwap)
	with, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	checkSound(t, idx, with)
	assert.Equal(t, 4.0, with.Cost)
	assert.LessOrEqual(t, with.Cost, without.Cost)
}

func TestSolveDeterministicUnderPermutation(t *testing.T) {
	legs, tails := randomInstance(t, 7)
	p := randomPolicy()
	k := NewKernel(nil)
	ref, err := k.Solve(context.Background(), mkIndex(t, legs, tails, p), Options{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 5; n++ {
		rng.Shuffle(len(legs), func(i, j int) { legs[i], legs[j] = legs[j], legs[i] })
		rng.Shuffle(len(tails), func(i, j int) { tails[i], tails[j] = tails[j], tails[i] })
		got, err := k.Solve(context.Background(), mkIndex(t, legs, tails, p), Options{})
		require.NoError(t, err)
		assert.Equal(t, ref.Signature(), got.Signature())
		assert.Equal(t, ref.Cost, got.Cost)
	}
}

func TestSolveRandomInstancesAreSound(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			legs, tails := randomInstance(t, seed)
			idx := mkIndex(t, legs, tails, randomPolicy())
			sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
			require.NoError(t, err)
			checkSound(t, idx, sol)
			assert.True(t, sol.Optimal())
			assert.LessOrEqual(t, sol.LowerBound, sol.Cost+1e-9)

			// a relaxed policy can only keep or lower the optimum
			loose := randomPolicy()
			loose.ShiftBuckets = append(loose.ShiftBuckets, model.ShiftBucket{Minutes: 120, Cost: 6})
			relaxed, err := NewKernel(nil).Solve(context.Background(), mkIndex(t, legs, tails, loose), Options{})
			require.NoError(t, err)
			assert.LessOrEqual(t, relaxed.Cost, sol.Cost+1e-9)
		})
	}
}

func TestSolveMatchesExhaustiveSearch(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			legs, tails, p := smallInstance(t, seed)
			idx := mkIndex(t, legs, tails, p)
			want := exhaustiveCost(idx)

			sol, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
			if math.IsInf(want, 1) {
				var nf *NoFeasibleSolution
				require.ErrorAs(t, err, &nf)
				return
			}
			require.NoError(t, err)
			checkSound(t, idx, sol)
			assert.InDelta(t, want, sol.Cost, 1e-9)
			assert.True(t, sol.Optimal())
		})
	}
}

type countdownCtx struct {
	context.Context
	left int
}

func (c *countdownCtx) Err() error {
	if c.left <= 0 {
		return context.DeadlineExceeded
	}
	c.left--
	return nil
}

func TestSolveBudgetReturnsIncumbent(t *testing.T) {
	old := checkEvery
	checkEvery = 1
	defer func() { checkEvery = old }()

	legs, tails := overlapping(t)
	t2, err := model.NewTail(model.TailSpec{
		ID: "T2", FleetClass: "B", DutyCapMinutes: 600, SwapClasses: []string{"A"},
		AvailableTo: day.Add(9*time.Hour + 30*time.Minute),
	})
	require.NoError(t, err)
	tails = append(tails, t2)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{
		ShiftBuckets: []model.ShiftBucket{{Minutes: 30, Cost: 5}},
		Swap:         model.Lever{Enabled: true, Cost: 2},
	})
	// the first incumbent shifts B for 5; the search stops while trying to
	// swap A onto T2
	ctx := &countdownCtx{Context: context.Background(), left: 4}
	sol, err := NewKernel(nil).Solve(ctx, idx, Options{DisableLPBound: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBudgetExceeded, sol.Status)
	assert.Equal(t, 5.0, sol.Cost)
	assert.False(t, sol.Optimal())

	full, err := NewKernel(nil).Solve(context.Background(), idx, Options{DisableLPBound: true})
	require.NoError(t, err)
	checkSound(t, idx, full)
	assert.Equal(t, 2.0, full.Cost)
	assert.True(t, full.Optimal())
	a, _ := full.Assignment("A")
	assert.Equal(t, "T2", a.TailID)
	assert.True(t, a.Swap)
}

func TestSolveBudgetWithoutIncumbent(t *testing.T) {
	old := checkEvery
	checkEvery = 1
	defer func() { checkEvery = old }()

	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{ShiftBuckets: shift30})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKernel(nil).Solve(ctx, idx, Options{})
	require.ErrorIs(t, err, ErrSearchBudgetExceeded)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSolveRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	defer ResetMetrics(nil)

	legs, tails := overlapping(t)
	idx := mkIndex(t, legs, tails, model.LeverPolicy{ShiftBuckets: shift30})
	_, err := NewKernel(nil).Solve(context.Background(), idx, Options{})
	require.NoError(t, err)
	_, err = NewKernel(nil).Solve(context.Background(), mkIndex(t, legs, tails, model.LeverPolicy{}), Options{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(solvesTotal.WithLabelValues("optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(solvesTotal.WithLabelValues("infeasible")))
	assert.Greater(t, testutil.ToFloat64(nodesExplored), 0.0)
}

func randomPolicy() model.LeverPolicy {
	return model.LeverPolicy{
		ShiftBuckets: []model.ShiftBucket{{Minutes: 15, Cost: 1}, {Minutes: 45, Cost: 3}},
		Swap:         model.Lever{Enabled: true, Cost: 2},
		Outsource:    model.OutsourceLever{Enabled: true, Cost: 20},
		Skip:         model.Lever{Enabled: true, Cost: 50},
	}
}

func randomInstance(t *testing.T, seed int64) ([]model.Leg, []model.Tail) {
	rng := rand.New(rand.NewSource(seed))
	classes := []string{"CJ2", "CJ3"}
	var legs []model.Leg
	for i := 0; i < 8; i++ {
		start := time.Duration(6*60+rng.Intn(12*60)) * time.Minute
		width := time.Duration(rng.Intn(4)*15) * time.Minute
		legs = append(legs, mkLeg(t, fmt.Sprintf("L%02d", i), classes[rng.Intn(2)], start, start+width, 45+rng.Intn(4)*30))
	}
	tails := []model.Tail{
		mkTail(t, "N1", "CJ2", 360, "CJ3"),
		mkTail(t, "N2", "CJ3", 360, "CJ2"),
		mkTail(t, "N3", "CJ3", 300),
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].ID() < legs[j].ID() })
	return legs, tails
}

// smallInstance draws up to four legs over two tails with windows wide
// enough for legs to be flown out of their closing order.
func smallInstance(t *testing.T, seed int64) ([]model.Leg, []model.Tail, model.LeverPolicy) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	classes := []string{"CJ2", "CJ3"}
	n := 2 + rng.Intn(3)
	var legs []model.Leg
	for i := 0; i < n; i++ {
		start := time.Duration(6*60+rng.Intn(6*60)) * time.Minute
		width := time.Duration(rng.Intn(9)*15) * time.Minute
		spec := model.LegSpec{
			ID: fmt.Sprintf("L%d", i), Origin: "KTEB", Destination: "KPBI", FleetClass: classes[rng.Intn(2)],
			EarliestDeparture: day.Add(start), LatestDeparture: day.Add(start + width), BlockMinutes: 30 + rng.Intn(6)*30,
		}
		if rng.Intn(4) == 0 {
			spec.Intent = model.IntentPOS
		}
		l, err := model.NewLeg(spec)
		require.NoError(t, err)
		legs = append(legs, l)
	}
	tails := []model.Tail{
		mkTail(t, "N1", "CJ2", 240+rng.Intn(5)*60, "CJ3"),
		mkTail(t, "N2", "CJ3", 240+rng.Intn(5)*60),
	}
	p := model.LeverPolicy{
		ShiftBuckets: []model.ShiftBucket{{Minutes: 15, Cost: 1}, {Minutes: 45, Cost: 3}},
		Swap:         model.Lever{Enabled: true, Cost: 2},
		Outsource:    model.OutsourceLever{Enabled: true, Cost: 20, Ceiling: float64(rng.Intn(2) * 20)},
		Skip:         model.Lever{Enabled: true, Cost: 50},
		DutyOverride: model.DutyOverride{Enabled: rng.Intn(2) == 0, ToleranceMinutes: 60, Cost: 4},
	}
	if rng.Intn(3) == 0 {
		p.ShiftDirection = model.ShiftLate
	}
	return legs, tails, p
}

// outcome is one way of handling a leg in the exhaustive search: a tail
// and the departure minutes priced by one shift bucket, or no tail at all.
type outcome struct {
	kind   model.AssignmentKind
	tail   int
	lo, hi int
	cost   float64
}

// exhaustiveCost prices every combination of per-leg outcomes and returns
// the cheapest one for which every tail has some flying order, or +Inf.
func exhaustiveCost(idx *compat.Index) float64 {
	p := idx.Policy()
	n := len(idx.Legs())
	signed := []int{0}
	for _, b := range p.ShiftBuckets {
		signed = append(signed, b.Minutes, -b.Minutes)
	}
	opts := make([][]outcome, n)
	for i := 0; i < n; i++ {
		for _, c := range idx.Candidates(i) {
			base := 0.0
			if c.Swap {
				base = p.Swap.Cost
			}
			for _, sb := range signed {
				if lo, hi, cost, ok := bucketWindow(idx, i, sb); ok {
					opts[i] = append(opts[i], outcome{kind: model.KindAssigned, tail: c.Tail, lo: lo, hi: hi, cost: base + cost})
				}
			}
		}
		switch {
		case !idx.Leg(i).Mandatory():
			opts[i] = append(opts[i], outcome{kind: model.KindUnscheduled, tail: -1})
		default:
			if idx.OutsourceAllowed(i) {
				opts[i] = append(opts[i], outcome{kind: model.KindOutsourced, tail: -1, cost: p.Outsource.Cost})
			}
			if p.Skip.Enabled {
				opts[i] = append(opts[i], outcome{kind: model.KindSkipped, tail: -1, cost: p.Skip.Cost})
			}
		}
	}

	type combo struct {
		pick []outcome
		cost float64
	}
	var combos []combo
	var rec func(i int, cur []outcome)
	rec = func(i int, cur []outcome) {
		if i < n {
			for _, o := range opts[i] {
				rec(i+1, append(cur, o))
			}
			return
		}
		cost, outsourced := 0.0, 0.0
		duty := map[int]int{}
		for j, o := range cur {
			cost += o.cost
			switch o.kind {
			case model.KindOutsourced:
				outsourced += o.cost
			case model.KindAssigned:
				duty[o.tail] += idx.BlockMinutes(j)
			}
		}
		if p.Outsource.Ceiling > 0 && outsourced > p.Outsource.Ceiling+1e-9 {
			return
		}
		for k, d := range duty {
			limit := idx.Tail(k).DutyCapMinutes()
			if d > limit+p.DutyTolerance() {
				return
			}
			if d > limit {
				cost += p.DutyOverride.Cost
			}
		}
		combos = append(combos, combo{pick: append([]outcome(nil), cur...), cost: cost})
	}
	rec(0, nil)

	sort.SliceStable(combos, func(a, b int) bool { return combos[a].cost < combos[b].cost })
	for _, c := range combos {
		if schedulable(idx, c.pick) {
			return c.cost
		}
	}
	return math.Inf(1)
}

// bucketWindow scans the departure range of leg i for the minutes priced by
// the signed bucket sb.
func bucketWindow(idx *compat.Index, i, sb int) (int, int, float64, bool) {
	from, to := idx.DepartureRange(i)
	lo, hi, cost, ok := 0, 0, 0.0, false
	for d := from; d <= to; d++ {
		shift := 0
		switch {
		case d > idx.Latest(i):
			shift = d - idx.Latest(i)
		case d < idx.Earliest(i):
			shift = d - idx.Earliest(i)
		}
		b, found := idx.Bucket(i, shift)
		if !found {
			continue
		}
		got := b.Minutes
		if shift < 0 {
			got = -got
		}
		if got != sb {
			continue
		}
		if !ok {
			lo = d
		}
		hi, cost, ok = d, b.Cost, true
	}
	return lo, hi, cost, ok
}

func schedulable(idx *compat.Index, pick []outcome) bool {
	byTail := map[int][]int{}
	for i, o := range pick {
		if o.kind == model.KindAssigned {
			byTail[o.tail] = append(byTail[o.tail], i)
		}
	}
	for k, legs := range byTail {
		if !anyOrder(idx, k, legs, pick) {
			return false
		}
	}
	return true
}

// anyOrder tries every permutation of legs on tail k with earliest-start
// timing.
func anyOrder(idx *compat.Index, k int, legs []int, pick []outcome) bool {
	order := make([]int, 0, len(legs))
	used := make([]bool, len(legs))
	var try func() bool
	try = func() bool {
		if len(order) == len(legs) {
			return timed(idx, k, order, pick)
		}
		for p, j := range legs {
			if used[p] {
				continue
			}
			used[p] = true
			order = append(order, j)
			ok := try()
			order = order[:len(order)-1]
			used[p] = false
			if ok {
				return true
			}
		}
		return false
	}
	return try()
}

func timed(idx *compat.Index, k int, order []int, pick []outcome) bool {
	prev, dep := -1, 0
	for _, j := range order {
		d := pick[j].lo
		if prev < 0 {
			if from := idx.AvailableFrom(k); from != compat.OpenFrom {
				d = max(d, from+idx.Initial(k, j))
			}
		} else {
			d = max(d, dep+idx.BlockMinutes(prev)+idx.Gap(prev, j))
		}
		if d > pick[j].hi {
			return false
		}
		prev, dep = j, d
	}
	to := idx.AvailableTo(k)
	return prev < 0 || to == compat.OpenTo || dep+idx.BlockMinutes(prev) <= to
}
