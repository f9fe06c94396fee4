// Package datatable implements a generic filterable, searchable, sortable and
// paginated view over a collection of rows.
package datatable

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Row is one record keyed by field name.
type Row map[string]any

// Text returns the display representation of the field, or "" when absent.
func (r Row) Text(field string) string {
	return Stringify(r[field])
}

// Stringify renders a cell value the way it is searched, filtered and exported.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(CellTimeLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isNullish(v any) bool {
	return v == nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

var linkPattern = regexp.MustCompile(`(?i)^(https?://|ftp://|mailto:|www\.)`)

// IsLink reports whether a cell value should render as an external link.
func IsLink(v any) bool {
	s, ok := v.(string)
	return ok && linkPattern.MatchString(s)
}
