package compat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kilianp07/negsched/core/model"
)

// Airport holds the coordinates used to price repositioning.
type Airport struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	TZ  string  `json:"tz,omitempty"`
}

// Airports maps upper-case ICAO codes to coordinates.
type Airports map[string]Airport

const (
	earthRadiusNM = 3440.065
	routeFactor   = 1.07
	taxiMinutes   = 10
)

// cruise speed (knots) and fixed climb/descent allowance (minutes) per
// reposition class.
var (
	cruiseTAS = map[string]float64{"CJ": 390, "LEG": 450, "GEN": 410}
	fudge     = map[string]int{"CJ": 12, "LEG": 15, "GEN": 13}
)

// GreatCircleNM returns the great-circle distance between two points.
func GreatCircleNM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := lat1*math.Pi/180, lat2*math.Pi/180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusNM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func repositionClass(fleetClass string) string {
	switch {
	case strings.HasPrefix(fleetClass, "CJ"):
		return "CJ"
	case strings.HasPrefix(fleetClass, "LEG"), strings.HasPrefix(fleetClass, "E"):
		return "LEG"
	default:
		return "GEN"
	}
}

// BlockMinutes converts a distance into block minutes for a fleet class.
func BlockMinutes(nm float64, fleetClass string) int {
	key := repositionClass(fleetClass)
	return int(math.Ceil(nm/cruiseTAS[key]*60 + float64(fudge[key]+taxiMinutes)))
}

// RepositionMinutes returns the ferry time between two airports. Identical
// airports cost nothing; unknown airports cost nothing either, leaving only
// the turn buffer.
func (a Airports) RepositionMinutes(from, to, fleetClass string) int {
	from, to = model.NormalizeAirport(from), model.NormalizeAirport(to)
	if from == "" || to == "" || from == to || a == nil {
		return 0
	}
	p, ok := a[from]
	if !ok {
		return 0
	}
	q, ok := a[to]
	if !ok {
		return 0
	}
	return BlockMinutes(GreatCircleNM(p.Lat, p.Lon, q.Lat, q.Lon)*routeFactor, fleetClass)
}

// LoadAirportsFile reads an airports CSV from disk.
func LoadAirportsFile(path string) (Airports, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadAirports(f)
}

// LoadAirports reads a CSV with a header row exposing at least icao, lat and
// lon columns and an optional tz column. Rows with missing or non-numeric
// coordinates are skipped.
func LoadAirports(r io.Reader) (Airports, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("airports: empty file")
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"icao", "lat", "lon"} {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("airports: missing %s column", k)
		}
	}
	tzCol, hasTZ := col["tz"]
	out := Airports{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		code := model.NormalizeAirport(field(col["icao"]))
		lat, err1 := strconv.ParseFloat(field(col["lat"]), 64)
		lon, err2 := strconv.ParseFloat(field(col["lon"]), 64)
		if code == "" || err1 != nil || err2 != nil {
			continue
		}
		ap := Airport{Lat: lat, Lon: lon}
		if hasTZ {
			ap.TZ = field(tzCol)
		}
		out[code] = ap
	}
	return out, nil
}
