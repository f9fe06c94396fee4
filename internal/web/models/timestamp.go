package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a backend timestamp. The zero value encodes as JSON null.
type Timestamp struct {
	time.Time
}

// backend timestamps may omit the zone; those are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses any of the accepted backend layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// CellLayout is how timestamps are shown in tables and filtered on.
const CellLayout = "02/01/2006 15:04:05"

// Cell renders the timestamp for a table cell in loc, or nil when unset.
func (t Timestamp) Cell(loc *time.Location) any {
	if t.IsZero() {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(CellLayout)
}

// Display is Cell for templates: "-" when unset.
func (t Timestamp) Display(loc *time.Location) string {
	if v, ok := t.Cell(loc).(string); ok {
		return v
	}
	return "-"
}
