package model

import "strings"

// fleetAliases maps known aircraft type spellings onto the fleet class used
// for compatibility. Entries are matched in order; the first hit wins.
var fleetAliases = []struct {
	class    string
	patterns []string
}{
	{"LEG", []string{"LEGACY", "PRAETOR", "EMBRAER", "EMB"}},
	{"CJ3", []string{"CJ3", "CJ-3", "CJIII", "CJ 3", "525B", "525C"}},
	{"CJ2", []string{"CJ2", "CJ-2", "CJII", "CJ 2", "525A"}},
	{"PC12", []string{"PC12", "PC-12", "PC 12"}},
	{"CHALLENGER", []string{"CHALLENGER", "CL30", "CL-30", "CL 30", "CL350", "CL300"}},
	{"HAWKER", []string{"HAWKER", "HS125", "H25"}},
}

// NormalizeFleetClass upper-cases and trims a fleet class and collapses known
// type aliases. Unknown classes are returned upper-cased.
func NormalizeFleetClass(s string) string {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return ""
	}
	for _, a := range fleetAliases {
		for _, p := range a.patterns {
			if strings.HasPrefix(v, p) {
				return a.class
			}
		}
	}
	return v
}

// NormalizeAirport returns the upper-cased ICAO code.
func NormalizeAirport(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
