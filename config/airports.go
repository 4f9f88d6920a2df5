package config

import "github.com/kilianp07/negsched/core/compat"

// AirportsConfig points to the airport coordinates used to price
// repositioning between legs.
type AirportsConfig struct {
	// Path is a CSV file with icao, lat and lon columns. Empty disables
	// repositioning, leaving only the turn buffer.
	Path string `json:"path"`
}

// Load reads the airports file, or returns nil when none is configured.
func (c AirportsConfig) Load() (compat.Airports, error) {
	if c.Path == "" {
		return nil, nil
	}
	return compat.LoadAirportsFile(c.Path)
}
