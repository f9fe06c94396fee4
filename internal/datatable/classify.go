package datatable

import (
	"regexp"
	"strconv"
	"strings"
)

// ColumnType is the semantic type used to pick a comparator for a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeNumeric
	TypeDate
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeDate:
		return "date"
	default:
		return "text"
	}
}

// Classifier assigns a column type from the column name and a sample of rows.
type Classifier interface {
	Classify(field string, rows []Row) ColumnType
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(field string, rows []Row) ColumnType

func (f ClassifierFunc) Classify(field string, rows []Row) ColumnType {
	return f(field, rows)
}

// DefaultSampleSize is the number of non-null values inspected when the
// column name gives no hint.
const DefaultSampleSize = 10

var (
	defaultDateKeywords = []string{
		"data", "date", "created", "updated", "vencimento", "cadastro", "aquisicao", "publicacao",
	}
	defaultNumericKeywords = []string{
		"id", "valor", "preco", "quantidade", "count", "total", "numero",
	}

	shortDatePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// KeywordClassifier classifies by substring keywords in the column name,
// then by sampling values. Overrides take precedence over both.
type KeywordClassifier struct {
	DateKeywords    []string
	NumericKeywords []string
	Overrides       map[string]ColumnType
	SampleSize      int
}

// NewKeywordClassifier returns a classifier with the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		DateKeywords:    defaultDateKeywords,
		NumericKeywords: defaultNumericKeywords,
		Overrides:       map[string]ColumnType{},
		SampleSize:      DefaultSampleSize,
	}
}

// Override pins the type of a column regardless of name or content.
func (c *KeywordClassifier) Override(field string, t ColumnType) *KeywordClassifier {
	if c.Overrides == nil {
		c.Overrides = map[string]ColumnType{}
	}
	c.Overrides[field] = t
	return c
}

func (c *KeywordClassifier) Classify(field string, rows []Row) ColumnType {
	if t, ok := c.Overrides[field]; ok {
		return t
	}

	name := strings.ToLower(field)
	if containsAny(name, c.DateKeywords) {
		return TypeDate
	}
	if containsAny(name, c.NumericKeywords) {
		return TypeNumeric
	}

	limit := c.SampleSize
	if limit <= 0 {
		limit = DefaultSampleSize
	}

	samples := make([]any, 0, limit)
	for _, row := range rows {
		if len(samples) == limit {
			break
		}
		if v, ok := row[field]; ok && !isNullish(v) {
			samples = append(samples, v)
		}
	}
	if len(samples) == 0 {
		return TypeText
	}

	allDates, allNumbers := true, true
	for _, v := range samples {
		s, isString := v.(string)
		if !isString || !shortDatePattern.MatchString(s) {
			allDates = false
		}
		if !looksNumeric(v) {
			allNumbers = false
		}
	}

	switch {
	case allDates:
		return TypeDate
	case allNumbers:
		return TypeNumeric
	default:
		return TypeText
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func looksNumeric(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case string:
		_, ok := leadingFloat(strings.TrimSpace(x))
		return ok
	default:
		return false
	}
}

// leadingFloat parses the longest numeric prefix of s, so "12abc" is 12.
func leadingFloat(s string) (float64, bool) {
	end := 0
	seenDigit, seenDot := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
			if seenDigit {
				end = i + 1
			}
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
