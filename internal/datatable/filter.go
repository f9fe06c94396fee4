package datatable

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SelectAll is the select value meaning "no restriction".
const SelectAll = "__SELECT_ALL__"

// FilterKind is the input type of a filter.
type FilterKind int

const (
	FilterSelect FilterKind = iota
	FilterText
	FilterDate
	FilterDateRange
)

func (k FilterKind) String() string {
	switch k {
	case FilterSelect:
		return "select"
	case FilterText:
		return "text"
	case FilterDate:
		return "date"
	case FilterDateRange:
		return "daterange"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// MatchMode controls how a select value is compared with the cell.
type MatchMode int

const (
	// MatchAuto picks a mode from FieldMatchers, falling back to MatchExact.
	MatchAuto MatchMode = iota
	// MatchExact compares the lowercased cell text with the lowercased value.
	MatchExact
	// MatchLabel maps the selected value through Labels and compares the
	// result with the cell text.
	MatchLabel
	// MatchBool compares the truthiness of the cell with value == "true".
	MatchBool
)

// Option is one entry of a select filter.
type Option struct {
	Value string
	Label string
}

// RangeFields names the two filter-value keys holding a date range.
type RangeFields struct {
	Start string
	End   string
}

// FilterSpec is one declarative filter over a field.
type FilterSpec struct {
	Field          string
	Kind           FilterKind
	Label          string
	Options        []Option
	DynamicOptions bool
	Placeholder    string
	Range          *RangeFields
	Match          MatchMode
	Labels         map[string]string
}

// FieldMatchers holds the select fields whose cells are not plain text.
// Specs with MatchAuto consult it.
var FieldMatchers = map[string]FilterSpec{
	"issue_resolved": {Match: MatchBool},
}

// Keys returns the filter-value keys this filter reads.
func (s FilterSpec) Keys() []string {
	if s.Kind == FilterDateRange {
		r := s.rangeFields()
		return []string{r.Start, r.End}
	}
	return []string{s.Field}
}

func (s FilterSpec) rangeFields() RangeFields {
	if s.Range != nil {
		return *s.Range
	}
	return RangeFields{Start: s.Field + "_start", End: s.Field + "_end"}
}

// InitialValue is the value a cleared filter holds for key.
func (s FilterSpec) InitialValue() string {
	if s.Kind == FilterSelect {
		return SelectAll
	}
	return ""
}

func (s FilterSpec) matchMode() (MatchMode, map[string]string) {
	if s.Match != MatchAuto {
		return s.Match, s.Labels
	}
	if m, ok := FieldMatchers[s.Field]; ok {
		return m.Match, m.Labels
	}
	return MatchExact, nil
}

// Empty reports whether a filter value places no restriction on rows.
func Empty(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == SelectAll
}

// Filter keeps the rows satisfying every spec. Specs whose values are empty
// are ignored. Date cells are read in loc; nil means UTC.
func Filter(rows []Row, specs []FilterSpec, values map[string]string, loc *time.Location) ([]Row, error) {
	if loc == nil {
		loc = time.UTC
	}

	active := make([]compiledFilter, 0, len(specs))
	for _, spec := range specs {
		f, ok, err := compileFilter(spec, values, loc)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return rows, nil
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, f := range active {
			if !f(row) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

type compiledFilter func(Row) bool

func compileFilter(spec FilterSpec, values map[string]string, loc *time.Location) (compiledFilter, bool, error) {
	switch spec.Kind {
	case FilterDateRange:
		r := spec.rangeFields()
		return compileDateRange(spec.Field, values[r.Start], values[r.End], loc)

	case FilterDate:
		v := values[spec.Field]
		return compileDateRange(spec.Field, v, v, loc)
	}

	value := values[spec.Field]
	if Empty(value) {
		return nil, false, nil
	}
	want := strings.ToLower(strings.TrimSpace(value))
	field := spec.Field

	if spec.Kind == FilterText {
		return func(row Row) bool {
			cell, ok := row[field]
			if !ok || isNullish(cell) {
				return false
			}
			return strings.Contains(strings.ToLower(Stringify(cell)), want)
		}, true, nil
	}

	mode, labels := spec.matchMode()
	switch mode {
	case MatchBool:
		wantTrue := want == "true"
		return func(row Row) bool {
			cell, ok := row[field]
			if !ok || isNullish(cell) {
				return false
			}
			return truthy(cell) == wantTrue
		}, true, nil

	case MatchLabel:
		if label, ok := labels[strings.TrimSpace(value)]; ok {
			want = strings.ToLower(label)
		}
	}

	return func(row Row) bool {
		cell, ok := row[field]
		if !ok || isNullish(cell) {
			return false
		}
		return strings.ToLower(Stringify(cell)) == want
	}, true, nil
}

func compileDateRange(field, start, end string, loc *time.Location) (compiledFilter, bool, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, false, nil
	}

	var lo, hi time.Time
	if start != "" {
		d, err := time.ParseInLocation(BoundLayout, start, loc)
		if err != nil {
			return nil, false, fmt.Errorf("filter %s: start bound %q: %w", field, start, err)
		}
		lo = d
	}
	if end != "" {
		d, err := time.ParseInLocation(BoundLayout, end, loc)
		if err != nil {
			return nil, false, fmt.Errorf("filter %s: end bound %q: %w", field, end, err)
		}
		hi = EndOfDay(d)
	}

	return func(row Row) bool {
		cell, ok := row[field]
		if !ok || isBlank(cell) {
			return false
		}
		var t time.Time
		if ts, isTime := cell.(time.Time); isTime {
			t = ts.In(loc)
		} else if t, ok = ParseCellDate(Stringify(cell), loc); !ok {
			return false
		}
		if !lo.IsZero() && t.Before(lo) {
			return false
		}
		if !hi.IsZero() && t.After(hi) {
			return false
		}
		return true
	}, true, nil
}

// BoundLayout is the layout of date filter values.
const BoundLayout = "2006-01-02"

// EndOfDay returns the last millisecond of the day d falls on.
func EndOfDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, int(999*time.Millisecond), d.Location())
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true"
	default:
		return false
	}
}

// Search keeps rows where any of fields contains text, case-insensitively.
// No fields or blank text keeps every row.
func Search(rows []Row, fields []string, text string) []Row {
	needle := strings.ToLower(strings.TrimSpace(text))
	if len(fields) == 0 || needle == "" {
		return rows
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		for _, field := range fields {
			cell, ok := row[field]
			if !ok || isNullish(cell) {
				continue
			}
			if strings.Contains(strings.ToLower(Stringify(cell)), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// DynamicOptions lists the distinct non-empty values of field, sorted, after
// a leading SelectAll entry.
func DynamicOptions(rows []Row, field, allLabel string) []Option {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, row := range rows {
		cell, ok := row[field]
		if !ok || isBlank(cell) {
			continue
		}
		s := Stringify(cell)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	sort.Strings(values)

	opts := make([]Option, 0, len(values)+1)
	opts = append(opts, Option{Value: SelectAll, Label: allLabel})
	for _, v := range values {
		opts = append(opts, Option{Value: v, Label: v})
	}
	return opts
}
