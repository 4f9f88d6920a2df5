package compat

import (
	"fmt"
	"strings"
)

// Constraint names the hard constraint behind an infeasibility or a lever.
type Constraint string

const (
	ConstraintNoCompatibleTail Constraint = "no_compatible_tail"
	ConstraintFleetClass       Constraint = "fleet_class"
	ConstraintSeatCapacity     Constraint = "seat_capacity"
	ConstraintTailAvailability Constraint = "tail_availability"
	ConstraintDutyCap          Constraint = "duty_cap"
	ConstraintTimeConflict     Constraint = "time_conflict"
	ConstraintCurrentTail      Constraint = "current_tail"
	ConstraintOutsourceCeiling Constraint = "outsource_ceiling"
)

// StructuralInfeasibility describes a leg that has no viable placement even
// before optimisation.
type StructuralInfeasibility struct {
	LegID      string     `json:"leg_id"`
	FleetClass string     `json:"fleet_class"`
	Constraint Constraint `json:"constraint"`
	Detail     string     `json:"detail"`
}

func (s StructuralInfeasibility) String() string {
	return fmt.Sprintf("leg %s (%s): %s: %s", s.LegID, s.FleetClass, s.Constraint, s.Detail)
}

// StructuralInfeasibilityError is returned when mandatory legs cannot be
// placed on any tail and cannot be outsourced or skipped.
type StructuralInfeasibilityError struct {
	Legs []StructuralInfeasibility
}

func (e *StructuralInfeasibilityError) Error() string {
	parts := make([]string, len(e.Legs))
	for i, l := range e.Legs {
		parts[i] = l.String()
	}
	return "structurally infeasible: " + strings.Join(parts, "; ")
}

// LegIDs returns the identifiers of the offending legs.
func (e *StructuralInfeasibilityError) LegIDs() []string {
	ids := make([]string, len(e.Legs))
	for i, l := range e.Legs {
		ids[i] = l.LegID
	}
	return ids
}
