package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/store"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ErrFormat is returned for an unknown export format.
var ErrFormat = errors.New("unknown export format")

// Record is the exported shape of an event.
type Record struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  string         `json:"event_type"`
	Name       string         `json:"name"`
	PersonID   string         `json:"person_id,omitempty"`
	Confidence *float64       `json:"confidence"`
	Recognized bool           `json:"recognized"`
	Location   *face.Location `json:"face_location"`
}

// NewRecord converts a stored event.
func NewRecord(e *store.Event) Record {
	rec := Record{
		Timestamp:  e.Timestamp,
		EventType:  e.Type,
		Name:       e.Name,
		PersonID:   e.PersonID,
		Recognized: e.Recognized,
	}
	if e.Recognized {
		c := e.Confidence
		rec.Confidence = &c
	}
	loc := face.Location{Top: e.Top, Right: e.Right, Bottom: e.Bottom, Left: e.Left}
	if loc != (face.Location{}) {
		rec.Location = &loc
	}
	return rec
}

var csvHeader = []string{"timestamp", "event_type", "name", "confidence", "recognized", "face_location"}

// Export writes events in format, oldest first.
func Export(w io.Writer, format string, events []*store.Event) error {
	records := make([]Record, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		records = append(records, NewRecord(events[i]))
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatCSV, "":
		return writeCSV(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

func writeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		conf := ""
		if r.Confidence != nil {
			conf = strconv.FormatFloat(*r.Confidence, 'f', 4, 64)
		}
		loc := ""
		if r.Location != nil {
			loc = fmt.Sprintf("(%d, %d, %d, %d)", r.Location.Top, r.Location.Right, r.Location.Bottom, r.Location.Left)
		}
		row := []string{
			r.Timestamp.Format(time.RFC3339Nano),
			r.EventType,
			r.Name,
			conf,
			strconv.FormatBool(r.Recognized),
			loc,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
