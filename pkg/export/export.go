package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/negsched/core/model"
)

var csvHeader = []string{"rank", "leg_id", "kind", "tail_id", "departure", "shift_minutes", "swap", "duty_override", "cost"}

// WriteJSON writes the ranked solutions to w in JSON format.
func WriteJSON(w io.Writer, sols []model.Solution) error {
	enc := json.NewEncoder(w)
	return enc.Encode(sols)
}

// WriteCSV writes one row per assignment, solutions in rank order. Legs that
// are not flown leave tail_id and departure empty.
func WriteCSV(w io.Writer, sols []model.Solution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range sols {
		for _, a := range s.Assignments {
			dep := ""
			if !a.Departure.IsZero() {
				dep = a.Departure.UTC().Format(time.RFC3339)
			}
			rec := []string{
				strconv.Itoa(s.Rank),
				a.LegID,
				string(a.Kind),
				a.TailID,
				dep,
				strconv.Itoa(a.ShiftMinutes),
				strconv.FormatBool(a.Swap),
				strconv.FormatBool(a.DutyOverride),
				strconv.FormatFloat(a.Cost, 'f', -1, 64),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
