package planner

import (
	"time"

	"github.com/kilianp07/negsched/core/diagnostics"
	"github.com/kilianp07/negsched/core/metrics"
	"github.com/kilianp07/negsched/core/model"
)

var leverOrder = []diagnostics.Lever{
	diagnostics.LeverShiftLate,
	diagnostics.LeverShiftEarly,
	diagnostics.LeverSwap,
	diagnostics.LeverDutyOverride,
	diagnostics.LeverOutsource,
	diagnostics.LeverSkip,
	diagnostics.LeverUnscheduled,
}

// LeverUsage counts, per ranked solution, the legs relying on each lever
// and the cost attributed to it. Levers nobody used are left out.
func LeverUsage(requestID string, policy model.LeverPolicy, sols []model.Solution, at time.Time) []metrics.LeverUsage {
	var out []metrics.LeverUsage
	for _, s := range sols {
		count := make(map[diagnostics.Lever]int)
		cost := make(map[diagnostics.Lever]float64)
		use := func(l diagnostics.Lever, c float64) {
			count[l]++
			cost[l] += c
		}
		for _, a := range s.Assignments {
			switch a.Kind {
			case model.KindAssigned:
				if a.ShiftMinutes != 0 {
					b, _ := policy.Bucket(a.ShiftMinutes)
					if a.ShiftMinutes > 0 {
						use(diagnostics.LeverShiftLate, b.Cost)
					} else {
						use(diagnostics.LeverShiftEarly, b.Cost)
					}
				}
				if a.Swap {
					use(diagnostics.LeverSwap, policy.Swap.Cost)
				}
				if a.DutyOverride {
					use(diagnostics.LeverDutyOverride, policy.DutyOverride.Cost)
				}
			case model.KindOutsourced:
				use(diagnostics.LeverOutsource, a.Cost)
			case model.KindSkipped:
				use(diagnostics.LeverSkip, a.Cost)
			case model.KindUnscheduled:
				use(diagnostics.LeverUnscheduled, 0)
			}
		}
		for _, l := range leverOrder {
			if count[l] == 0 {
				continue
			}
			out = append(out, metrics.LeverUsage{
				RequestID: requestID,
				Rank:      s.Rank,
				Lever:     string(l),
				Count:     count[l],
				Cost:      cost[l],
				Time:      at,
			})
		}
	}
	return out
}
