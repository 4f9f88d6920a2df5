package model

import (
	"sort"
	"strings"
	"time"
)

// TailSpec is the raw aircraft record supplied by a fleet source.
type TailSpec struct {
	ID             string    `json:"id" yaml:"id"`
	FleetClass     string    `json:"fleet_class" yaml:"fleet_class"`
	Location       string    `json:"location,omitempty" yaml:"location,omitempty"`
	AvailableFrom  time.Time `json:"available_from,omitempty" yaml:"available_from,omitempty"`
	AvailableTo    time.Time `json:"available_to,omitempty" yaml:"available_to,omitempty"`
	DutyCapMinutes int       `json:"duty_cap_minutes" yaml:"duty_cap_minutes"`
	SwapClasses    []string  `json:"swap_classes,omitempty" yaml:"swap_classes,omitempty"`
	Seats          int       `json:"seats,omitempty" yaml:"seats,omitempty"`
}

// Tail is one validated assignable aircraft. A zero AvailableFrom or
// AvailableTo leaves that side of the availability window open.
type Tail struct {
	id          string
	fleetClass  string
	location    string
	from        time.Time
	to          time.Time
	dutyCap     int
	swapClasses []string
	seats       int
}

// NewTail validates the record and returns the tail.
func NewTail(s TailSpec) (Tail, error) {
	id := strings.ToUpper(strings.TrimSpace(s.ID))
	if id == "" {
		return Tail{}, invalid("tail", "", "id", "must not be empty")
	}
	class := NormalizeFleetClass(s.FleetClass)
	switch {
	case class == "":
		return Tail{}, invalid("tail", id, "fleet_class", "must not be empty")
	case s.DutyCapMinutes <= 0:
		return Tail{}, invalid("tail", id, "duty_cap_minutes", "must be positive")
	case s.Seats < 0:
		return Tail{}, invalid("tail", id, "seats", "must not be negative")
	case !s.AvailableFrom.IsZero() && !s.AvailableTo.IsZero() && !s.AvailableTo.After(s.AvailableFrom):
		return Tail{}, invalid("tail", id, "available_to", "must be after available_from")
	case !wholeMinute(s.AvailableFrom):
		return Tail{}, invalid("tail", id, "available_from", "must fall on a whole minute")
	case !wholeMinute(s.AvailableTo):
		return Tail{}, invalid("tail", id, "available_to", "must fall on a whole minute")
	}
	seen := make(map[string]bool, len(s.SwapClasses))
	var swaps []string
	for _, c := range s.SwapClasses {
		n := NormalizeFleetClass(c)
		if n == "" {
			return Tail{}, invalid("tail", id, "swap_classes", "must not contain empty classes")
		}
		if n == class || seen[n] {
			continue
		}
		seen[n] = true
		swaps = append(swaps, n)
	}
	sort.Strings(swaps)
	t := Tail{
		id:          id,
		fleetClass:  class,
		location:    NormalizeAirport(s.Location),
		dutyCap:     s.DutyCapMinutes,
		swapClasses: swaps,
		seats:       s.Seats,
	}
	if !s.AvailableFrom.IsZero() {
		t.from = s.AvailableFrom.UTC()
	}
	if !s.AvailableTo.IsZero() {
		t.to = s.AvailableTo.UTC()
	}
	return t, nil
}

func (t Tail) ID() string               { return t.id }
func (t Tail) FleetClass() string       { return t.fleetClass }
func (t Tail) Location() string         { return t.location }
func (t Tail) AvailableFrom() time.Time { return t.from }
func (t Tail) AvailableTo() time.Time   { return t.to }
func (t Tail) DutyCapMinutes() int      { return t.dutyCap }
func (t Tail) Seats() int               { return t.seats }

// SwapClasses returns a copy of the fleet classes the tail may substitute for.
func (t Tail) SwapClasses() []string {
	return append([]string(nil), t.swapClasses...)
}

// CanSwapFor reports whether the tail may substitute for the given class.
func (t Tail) CanSwapFor(class string) bool {
	i := sort.SearchStrings(t.swapClasses, class)
	return i < len(t.swapClasses) && t.swapClasses[i] == class
}

// Spec returns the normalised record the tail was built from.
func (t Tail) Spec() TailSpec {
	return TailSpec{
		ID:             t.id,
		FleetClass:     t.fleetClass,
		Location:       t.location,
		AvailableFrom:  t.from,
		AvailableTo:    t.to,
		DutyCapMinutes: t.dutyCap,
		SwapClasses:    t.SwapClasses(),
		Seats:          t.seats,
	}
}
