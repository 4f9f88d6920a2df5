package model

import (
	"strings"
	"time"
)

// Intent values carried by schedule records. Passenger legs are mandatory by
// default, positioning legs are optional.
const (
	IntentPAX = "PAX"
	IntentPOS = "POS"
)

// LegSpec is the raw leg record supplied by a schedule source.
type LegSpec struct {
	ID                string    `json:"id" yaml:"id"`
	Origin            string    `json:"origin" yaml:"origin"`
	Destination       string    `json:"destination" yaml:"destination"`
	EarliestDeparture time.Time `json:"earliest_departure" yaml:"earliest_departure"`
	LatestDeparture   time.Time `json:"latest_departure" yaml:"latest_departure"`
	BlockMinutes      int       `json:"block_minutes" yaml:"block_minutes"`
	FleetClass        string    `json:"fleet_class" yaml:"fleet_class"`
	Passengers        int       `json:"passengers" yaml:"passengers"`
	// Mandatory overrides the intent-derived default when set.
	Mandatory   *bool  `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
	Intent      string `json:"intent,omitempty" yaml:"intent,omitempty"`
	CurrentTail string `json:"current_tail,omitempty" yaml:"current_tail,omitempty"`
	OwnerID     string `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`

	// PreferredDeparture is where the leg departs when the schedule leaves
	// it free to move inside its window. Zero means the earliest departure.
	PreferredDeparture time.Time `json:"preferred_departure,omitempty" yaml:"preferred_departure,omitempty"`

	// Per-leg lever overrides. They can only narrow the policy: a lever the
	// policy disables stays disabled. Nil keeps the policy.
	AllowTailSwap        *bool `json:"allow_tail_swap,omitempty" yaml:"allow_tail_swap,omitempty"`
	AllowOutsource       *bool `json:"allow_outsource,omitempty" yaml:"allow_outsource,omitempty"`
	MaxLateShiftMinutes  *int  `json:"max_late_shift_minutes,omitempty" yaml:"max_late_shift_minutes,omitempty"`
	MaxEarlyShiftMinutes *int  `json:"max_early_shift_minutes,omitempty" yaml:"max_early_shift_minutes,omitempty"`
}

// NoShiftCap marks a leg without its own shift limit.
const NoShiftCap = -1

// Leg is one validated unit of flight demand. A Leg can only be obtained
// through NewLeg and is immutable afterwards.
type Leg struct {
	id          string
	origin      string
	destination string
	earliest    time.Time
	latest      time.Time
	block       int
	fleetClass  string
	passengers  int
	mandatory   bool
	intent      string
	currentTail string
	ownerID     string
	preferred   time.Time

	noSwap      bool
	noOutsource bool
	lateCap     int
	earlyCap    int
}

// NewLeg validates the record and returns the leg.
func NewLeg(s LegSpec) (Leg, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return Leg{}, invalid("leg", "", "id", "must not be empty")
	}
	origin := NormalizeAirport(s.Origin)
	dest := NormalizeAirport(s.Destination)
	switch {
	case origin == "":
		return Leg{}, invalid("leg", id, "origin", "must not be empty")
	case dest == "":
		return Leg{}, invalid("leg", id, "destination", "must not be empty")
	case origin == dest:
		return Leg{}, invalid("leg", id, "destination", "must differ from origin")
	case s.EarliestDeparture.IsZero():
		return Leg{}, invalid("leg", id, "earliest_departure", "must be set")
	case s.LatestDeparture.IsZero():
		return Leg{}, invalid("leg", id, "latest_departure", "must be set")
	case s.LatestDeparture.Before(s.EarliestDeparture):
		return Leg{}, invalid("leg", id, "latest_departure", "must not precede earliest_departure")
	case s.BlockMinutes <= 0:
		return Leg{}, invalid("leg", id, "block_minutes", "must be positive")
	case s.Passengers < 0:
		return Leg{}, invalid("leg", id, "passengers", "must not be negative")
	case !wholeMinute(s.EarliestDeparture):
		return Leg{}, invalid("leg", id, "earliest_departure", "must fall on a whole minute")
	case !wholeMinute(s.LatestDeparture):
		return Leg{}, invalid("leg", id, "latest_departure", "must fall on a whole minute")
	}
	var preferred time.Time
	if !s.PreferredDeparture.IsZero() {
		switch {
		case !wholeMinute(s.PreferredDeparture):
			return Leg{}, invalid("leg", id, "preferred_departure", "must fall on a whole minute")
		case s.PreferredDeparture.Before(s.EarliestDeparture) || s.PreferredDeparture.After(s.LatestDeparture):
			return Leg{}, invalid("leg", id, "preferred_departure", "must lie inside the departure window")
		}
		preferred = s.PreferredDeparture.UTC()
	}
	lateCap, earlyCap := NoShiftCap, NoShiftCap
	if s.MaxLateShiftMinutes != nil {
		if *s.MaxLateShiftMinutes < 0 {
			return Leg{}, invalid("leg", id, "max_late_shift_minutes", "must not be negative")
		}
		lateCap = *s.MaxLateShiftMinutes
	}
	if s.MaxEarlyShiftMinutes != nil {
		if *s.MaxEarlyShiftMinutes < 0 {
			return Leg{}, invalid("leg", id, "max_early_shift_minutes", "must not be negative")
		}
		earlyCap = *s.MaxEarlyShiftMinutes
	}
	class := NormalizeFleetClass(s.FleetClass)
	if class == "" {
		return Leg{}, invalid("leg", id, "fleet_class", "must not be empty")
	}
	intent := strings.ToUpper(strings.TrimSpace(s.Intent))
	switch intent {
	case "":
		intent = IntentPAX
	case IntentPAX, IntentPOS:
	default:
		intent = IntentPOS
	}
	mandatory := intent == IntentPAX
	if s.Mandatory != nil {
		mandatory = *s.Mandatory
	}
	return Leg{
		id:          id,
		origin:      origin,
		destination: dest,
		earliest:    s.EarliestDeparture.UTC(),
		latest:      s.LatestDeparture.UTC(),
		block:       s.BlockMinutes,
		fleetClass:  class,
		passengers:  s.Passengers,
		mandatory:   mandatory,
		intent:      intent,
		currentTail: strings.ToUpper(strings.TrimSpace(s.CurrentTail)),
		ownerID:     s.OwnerID,
		preferred:   preferred,
		noSwap:      s.AllowTailSwap != nil && !*s.AllowTailSwap,
		noOutsource: s.AllowOutsource != nil && !*s.AllowOutsource,
		lateCap:     lateCap,
		earlyCap:    earlyCap,
	}, nil
}

// wholeMinute reports whether t carries no seconds. Schedules are solved on
// a minute grid.
func wholeMinute(t time.Time) bool {
	return t.Truncate(time.Minute).Equal(t)
}

func (l Leg) ID() string                   { return l.id }
func (l Leg) Origin() string               { return l.origin }
func (l Leg) Destination() string          { return l.destination }
func (l Leg) EarliestDeparture() time.Time { return l.earliest }
func (l Leg) LatestDeparture() time.Time   { return l.latest }
func (l Leg) BlockMinutes() int            { return l.block }
func (l Leg) FleetClass() string           { return l.fleetClass }
func (l Leg) Passengers() int              { return l.passengers }
func (l Leg) Mandatory() bool              { return l.mandatory }
func (l Leg) Intent() string               { return l.intent }
func (l Leg) CurrentTail() string          { return l.currentTail }
func (l Leg) OwnerID() string              { return l.ownerID }

// PreferredDeparture returns the preferred departure, or the earliest
// departure when none was given.
func (l Leg) PreferredDeparture() time.Time {
	if l.preferred.IsZero() {
		return l.earliest
	}
	return l.preferred
}

// SwapAllowed reports whether the leg accepts a tail swap.
func (l Leg) SwapAllowed() bool { return !l.noSwap }

// OutsourceAllowed reports whether the leg may be handed to a third party.
func (l Leg) OutsourceAllowed() bool { return !l.noOutsource }

// LateShiftCap returns the leg's own late shift limit in minutes, or
// NoShiftCap.
func (l Leg) LateShiftCap() int { return l.lateCap }

// EarlyShiftCap returns the leg's own early shift limit in minutes, or
// NoShiftCap.
func (l Leg) EarlyShiftCap() int { return l.earlyCap }

// Block returns the block time as a duration.
func (l Leg) Block() time.Duration { return time.Duration(l.block) * time.Minute }

// Spec returns the normalised record the leg was built from.
func (l Leg) Spec() LegSpec {
	m := l.mandatory
	spec := LegSpec{
		ID:                l.id,
		Origin:            l.origin,
		Destination:       l.destination,
		EarliestDeparture: l.earliest,
		LatestDeparture:   l.latest,
		BlockMinutes:      l.block,
		FleetClass:        l.fleetClass,
		Passengers:        l.passengers,
		Mandatory:         &m,
		Intent:            l.intent,
		CurrentTail:       l.currentTail,
		OwnerID:           l.ownerID,
	}
	spec.PreferredDeparture = l.preferred
	if l.noSwap {
		spec.AllowTailSwap = boolPtr(false)
	}
	if l.noOutsource {
		spec.AllowOutsource = boolPtr(false)
	}
	if l.lateCap != NoShiftCap {
		c := l.lateCap
		spec.MaxLateShiftMinutes = &c
	}
	if l.earlyCap != NoShiftCap {
		c := l.earlyCap
		spec.MaxEarlyShiftMinutes = &c
	}
	return spec
}

func boolPtr(b bool) *bool { return &b }
