package datatable

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparator orders two cell values. It returns a negative number when a
// sorts before b, zero when they are equivalent and a positive number otherwise.
type Comparator func(a, b any) int

// Date cell layouts, most specific first.
const (
	CellTimeLayout = "02/01/2006 15:04:05"
	CellDateLayout = "02/01/2006"
)

var (
	cellLayouts = []string{CellTimeLayout, "02/01/2006 15:04", CellDateLayout}

	genericLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	nonNumeric = regexp.MustCompile(`[^\d.\-]`)

	collators = sync.Pool{
		New: func() any { return collate.New(language.BrazilianPortuguese) },
	}
)

// ComparatorFor returns the comparator used for a column of the given type.
func ComparatorFor(t ColumnType) Comparator {
	switch t {
	case TypeDate:
		return CompareDate
	case TypeNumeric:
		return CompareNumeric
	default:
		return CompareText
	}
}

// CompareDate orders blank values first, then unparsable values, then dates.
// Values containing "/" are read as DD/MM/YYYY, anything else as an ISO-like
// timestamp.
func CompareDate(a, b any) int {
	ta, rankA := sortableDate(a)
	tb, rankB := sortableDate(b)
	if rankA != rankB {
		return rankA - rankB
	}
	return ta.Compare(tb)
}

// CompareNumeric strips everything but digits, dots and minus signs before
// parsing. Nil sorts first, then values that do not parse, then numbers.
func CompareNumeric(a, b any) int {
	na, rankA := sortableNumber(a)
	nb, rankB := sortableNumber(b)
	if rankA != rankB {
		return rankA - rankB
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}

// CompareText is a case-insensitive pt-BR collation. Blank values sort first.
func CompareText(a, b any) int {
	blankA, blankB := isBlank(a), isBlank(b)
	switch {
	case blankA && blankB:
		return 0
	case blankA:
		return -1
	case blankB:
		return 1
	}

	sa := strings.ToLower(Stringify(a))
	sb := strings.ToLower(Stringify(b))

	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	if r := c.CompareString(sa, sb); r != 0 {
		return r
	}
	return strings.Compare(sa, sb)
}

// sortableDate returns the parsed value and its rank: 0 blank, 1 not a date, 2 date.
func sortableDate(v any) (time.Time, int) {
	if isBlank(v) {
		return time.Time{}, 0
	}
	switch x := v.(type) {
	case time.Time:
		return x, 2
	case int64:
		return time.UnixMilli(x), 2
	case int:
		return time.UnixMilli(int64(x)), 2
	case float64:
		if math.IsNaN(x) {
			return time.Time{}, 1
		}
		return time.UnixMilli(int64(x)), 2
	}

	s := strings.TrimSpace(Stringify(v))
	if strings.Contains(s, "/") {
		if t, ok := ParseCellDate(s, time.UTC); ok {
			return t, 2
		}
		return time.Time{}, 1
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, 2
		}
	}
	return time.Time{}, 1
}

// ParseCellDate reads a DD/MM/YYYY cell with an optional time of day in loc.
func ParseCellDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range cellLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortableNumber returns the parsed value and its rank: 0 nil, 1 not a number, 2 number.
func sortableNumber(v any) (float64, int) {
	switch x := v.(type) {
	case nil:
		return 0, 0
	case int:
		return float64(x), 2
	case int32:
		return float64(x), 2
	case int64:
		return float64(x), 2
	case uint:
		return float64(x), 2
	case uint64:
		return float64(x), 2
	case float32:
		return float64(x), 2
	case float64:
		if math.IsNaN(x) {
			return 0, 1
		}
		return x, 2
	}
	f, ok := leadingFloat(nonNumeric.ReplaceAllString(Stringify(v), ""))
	if !ok {
		return 0, 1
	}
	return f, 2
}
