package events

import (
	"time"

	"github.com/kilianp07/negsched/core/compat"
)

// PlanRequested is published once the request inputs are validated.
type PlanRequested struct {
	RequestID string
	Legs      int
	Tails     int
	K         int
	Budget    time.Duration
}

// LegsExcluded lists the legs removed before solving.
type LegsExcluded struct {
	RequestID string
	Legs      []compat.StructuralInfeasibility
}

// PlanCompleted is published when at least one solution was found.
type PlanCompleted struct {
	RequestID string
	Status    string
	Solutions int
	BestCost  float64
	Elapsed   time.Duration
}

// PlanFailed is published when the request produced no solution.
type PlanFailed struct {
	RequestID string
	Status    string
	Err       error
}
