package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// AssignmentKind is the branch chosen for one leg.
type AssignmentKind string

const (
	KindAssigned    AssignmentKind = "assigned"
	KindOutsourced  AssignmentKind = "outsourced"
	KindSkipped     AssignmentKind = "skipped"
	KindUnscheduled AssignmentKind = "unscheduled"
)

// Assignment is the solver's decision for one leg. ShiftBucket carries the
// sign of the shift: -30 means the 30 minute bucket applied early.
type Assignment struct {
	LegID        string         `json:"leg_id"`
	Kind         AssignmentKind `json:"kind"`
	TailID       string         `json:"tail_id,omitempty"`
	Departure    time.Time      `json:"departure,omitempty"`
	ShiftMinutes int            `json:"shift_minutes,omitempty"`
	ShiftBucket  int            `json:"shift_bucket,omitempty"`
	Swap         bool           `json:"swap,omitempty"`
	DutyOverride bool           `json:"duty_override,omitempty"`
	Cost         float64        `json:"cost"`
}

// Arrival returns the block-off time for an assigned leg of the given length.
func (a Assignment) Arrival(blockMinutes int) time.Time {
	return a.Departure.Add(time.Duration(blockMinutes) * time.Minute)
}

// Status tags how a solution was obtained.
type Status string

const (
	// StatusOptimal means the search proved no cheaper solution exists.
	StatusOptimal Status = "optimal"
	// StatusBudgetExceeded means the search budget expired first; the
	// solution is feasible but possibly suboptimal, gap unknown.
	StatusBudgetExceeded Status = "search_budget_exceeded"
)

// SearchStats summarises the search that produced a solution.
type SearchStats struct {
	Nodes   int64         `json:"nodes"`
	Elapsed time.Duration `json:"elapsed"`
}

// Solution is one complete schedule. Assignments are ordered by leg ID and
// reference legs and tails by identifier only.
type Solution struct {
	Rank        int          `json:"rank"`
	Assignments []Assignment `json:"assignments"`
	Cost        float64      `json:"cost"`
	Feasible    bool         `json:"feasible"`
	Status      Status       `json:"status"`
	LowerBound  float64      `json:"lower_bound"`
	Stats       SearchStats  `json:"stats"`
}

// NewSolution sorts the assignments by leg ID and sums their costs.
func NewSolution(assignments []Assignment, status Status) Solution {
	as := append([]Assignment(nil), assignments...)
	sort.Slice(as, func(i, j int) bool { return as[i].LegID < as[j].LegID })
	var cost float64
	for _, a := range as {
		cost += a.Cost
	}
	return Solution{Assignments: as, Cost: cost, Feasible: true, Status: status}
}

// Optimal reports whether the solution was proven cost-minimal.
func (s Solution) Optimal() bool { return s.Status == StatusOptimal }

// Assignment returns the decision for the given leg.
func (s Solution) Assignment(legID string) (Assignment, bool) {
	i := sort.Search(len(s.Assignments), func(i int) bool { return s.Assignments[i].LegID >= legID })
	if i < len(s.Assignments) && s.Assignments[i].LegID == legID {
		return s.Assignments[i], true
	}
	return Assignment{}, false
}

// ByTail groups assigned legs per tail in departure order.
func (s Solution) ByTail() map[string][]Assignment {
	out := make(map[string][]Assignment)
	for _, a := range s.Assignments {
		if a.Kind != KindAssigned {
			continue
		}
		out[a.TailID] = append(out[a.TailID], a)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Departure.Before(list[j].Departure) })
	}
	return out
}

// Signature is the full assignment vector of a solution: per leg the kind,
// tail, signed shift bucket and swap flag. Two solutions with the same
// signature are the same alternative.
type Signature string

// Signature returns the assignment vector of s.
func (s Solution) Signature() Signature {
	return SignatureOf(s.Assignments)
}

// SignatureOf builds a signature from assignments sorted by leg ID.
func SignatureOf(as []Assignment) Signature {
	var b strings.Builder
	for _, a := range as {
		b.WriteString(a.LegID)
		b.WriteByte('|')
		b.WriteString(string(a.Kind))
		b.WriteByte('|')
		b.WriteString(a.TailID)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(a.ShiftBucket))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(a.Swap))
		b.WriteByte(';')
	}
	return Signature(b.String())
}
