package datatable

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Page sizes offered to the user. PageSizeAll shows every row on one page.
const (
	DefaultPageSize = 10
	PageSizeAll     = 0
)

// PageSizes are the selectable page sizes besides PageSizeAll.
var PageSizes = []int{10, 20, 30, 40, 50}

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrRowOutOfRange   = errors.New("row index out of range")
)

// Column describes one displayable field.
type Column struct {
	ID       string
	Label    string
	Sortable bool
}

// SortDirection of the single sorted column.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

func (d SortDirection) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Sort is the current sort state. An empty Field means unsorted.
type Sort struct {
	Field     string
	Direction SortDirection
}

// Config is the per-page configuration of a table.
type Config struct {
	Columns        []Column
	InitialVisible []string
	SearchFields   []string
	Filters        []FilterSpec
	RowLinkPrefix  string
	Classifier     Classifier
	PageSize       int
	Location       *time.Location
}

// Table holds the view state of one table: sort, filters, search text,
// pagination, column visibility and the local row order. It is safe for
// concurrent use.
type Table struct {
	mu sync.Mutex

	cfg        Config
	classifier Classifier
	loc        *time.Location

	data  []Row
	types map[string]ColumnType

	sort      Sort
	visible   map[string]bool
	filters   map[string]string
	search    string
	pageIndex int
	pageSize  int

	// rowOrder permutes the rows of the current page; nil means identity.
	rowOrder []int
}

// New creates a table for cfg with no data.
func New(cfg Config) *Table {
	t := &Table{
		cfg:        cfg,
		classifier: cfg.Classifier,
		loc:        cfg.Location,
		types:      make(map[string]ColumnType),
		visible:    make(map[string]bool, len(cfg.Columns)),
		filters:    make(map[string]string),
		pageSize:   cfg.PageSize,
	}
	if t.classifier == nil {
		t.classifier = NewKeywordClassifier()
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.pageSize < 0 || (t.pageSize > 0 && !slices.Contains(PageSizes, t.pageSize)) || cfg.PageSize == 0 {
		t.pageSize = DefaultPageSize
	}

	for _, c := range cfg.Columns {
		t.visible[c.ID] = cfg.InitialVisible == nil || slices.Contains(cfg.InitialVisible, c.ID)
	}
	t.resetFilters()
	return t
}

// Config returns the configuration the table was built with.
func (t *Table) Config() Config {
	return t.cfg
}

// SetData replaces the rows. Column types are reclassified and the local
// row order is discarded; the page index is clamped to the new page count.
func (t *Table) SetData(rows []Row) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = rows
	t.types = make(map[string]ColumnType, len(t.cfg.Columns))
	for _, c := range t.cfg.Columns {
		t.types[c.ID] = t.classifier.Classify(c.ID, rows)
	}
	t.rowOrder = nil

	if pages := t.pageCountLocked(t.filteredLocked()); t.pageIndex >= pages {
		t.pageIndex = max(pages-1, 0)
	}
}

// Data returns the unfiltered rows.
func (t *Table) Data() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// ColumnType returns the classified type of a column.
func (t *Table) ColumnType(field string) ColumnType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.types[field]
}

// SetFilter sets the value of one filter key. Keys are filter fields, or the
// start/end keys of a date range filter.
func (t *Table) SetFilter(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.filters[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFilter, key)
	}
	if t.isDateKey(key) && strings.TrimSpace(value) != "" {
		if _, err := time.Parse(BoundLayout, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("filter %s: %w", key, err)
		}
	}
	t.filters[key] = value
	t.pageIndex = 0
	t.rowOrder = nil
	return nil
}

// ClearFilters resets selects to SelectAll and every other input to empty.
func (t *Table) ClearFilters() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetFilters()
	t.pageIndex = 0
	t.rowOrder = nil
}

func (t *Table) resetFilters() {
	for _, spec := range t.cfg.Filters {
		for _, key := range spec.Keys() {
			t.filters[key] = spec.InitialValue()
		}
	}
}

// HasActiveFilters reports whether any filter restricts rows.
func (t *Table) HasActiveFilters() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasActiveFiltersLocked()
}

func (t *Table) hasActiveFiltersLocked() bool {
	for _, v := range t.filters {
		if !Empty(v) {
			return true
		}
	}
	return false
}

// FilterValues returns a copy of the current filter values.
func (t *Table) FilterValues() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.filters))
	for k, v := range t.filters {
		out[k] = v
	}
	return out
}

// SetSearch sets the global search text.
func (t *Table) SetSearch(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.search == text {
		return
	}
	t.search = text
	t.pageIndex = 0
	t.rowOrder = nil
}

// ToggleSort sorts by field ascending, or flips the direction when field is
// already sorted. Only one column is sorted at a time.
func (t *Table) ToggleSort(field string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	col, ok := t.column(field)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	if !col.Sortable {
		return nil
	}

	if t.sort.Field == field && t.sort.Direction == Ascending {
		t.sort.Direction = Descending
	} else {
		t.sort = Sort{Field: field, Direction: Ascending}
	}
	t.rowOrder = nil
	return nil
}

// SetSort sets the sort state directly. An empty field clears sorting.
func (t *Table) SetSort(s Sort) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Field != "" {
		if _, ok := t.column(s.Field); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, s.Field)
		}
	}
	t.sort = s
	t.rowOrder = nil
	return nil
}

// Sorting returns the current sort state.
func (t *Table) Sorting() Sort {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sort
}

// SetPageSize sets one of PageSizes, or PageSizeAll. The page index resets.
func (t *Table) SetPageSize(n int) error {
	if n != PageSizeAll && !slices.Contains(PageSizes, n) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pageSize = n
	t.pageIndex = 0
	t.rowOrder = nil
	return nil
}

// SetPage moves to page index i, clamped to the available pages.
func (t *Table) SetPage(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := t.pageCountLocked(t.filteredLocked())
	t.pageIndex = min(max(i, 0), max(pages-1, 0))
	t.rowOrder = nil
}

func (t *Table) NextPage()     { t.SetPage(t.PageIndex() + 1) }
func (t *Table) PreviousPage() { t.SetPage(t.PageIndex() - 1) }
func (t *Table) FirstPage()    { t.SetPage(0) }
func (t *Table) LastPage()     { t.SetPage(t.PageCount() - 1) }

// PageIndex returns the zero-based current page.
func (t *Table) PageIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageIndex
}

// PageCount returns the number of pages of the filtered rows, at least 1.
func (t *Table) PageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageCountLocked(t.filteredLocked())
}

func (t *Table) pageCountLocked(rows []Row) int {
	if t.pageSize == PageSizeAll || len(rows) == 0 {
		return 1
	}
	return (len(rows) + t.pageSize - 1) / t.pageSize
}

// ToggleColumn flips the visibility of a column.
func (t *Table) ToggleColumn(field string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.visible[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	t.visible[field] = !t.visible[field]
	return nil
}

// SetColumnVisible shows or hides a column.
func (t *Table) SetColumnVisible(field string, visible bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.visible[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	t.visible[field] = visible
	return nil
}

// VisibleColumns returns the visible columns in configuration order.
func (t *Table) VisibleColumns() []Column {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visibleColumnsLocked()
}

func (t *Table) visibleColumnsLocked() []Column {
	out := make([]Column, 0, len(t.cfg.Columns))
	for _, c := range t.cfg.Columns {
		if t.visible[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// FilteredRows returns the rows passing filters and search, in sorted order.
func (t *Table) FilteredRows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filteredLocked()
}

// filteredLocked applies filters, then search, then the sort.
func (t *Table) filteredLocked() []Row {
	rows, err := Filter(t.data, t.cfg.Filters, t.filters, t.loc)
	if err != nil {
		// Unparsable bounds only come from bad input; treat as no match.
		return nil
	}
	rows = Search(rows, t.cfg.SearchFields, t.search)

	if t.sort.Field == "" {
		return rows
	}
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	cmp := ComparatorFor(t.types[t.sort.Field])
	field := t.sort.Field
	desc := t.sort.Direction == Descending
	sort.SliceStable(sorted, func(i, j int) bool {
		c := cmp(sorted[i][field], sorted[j][field])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return sorted
}

// PageRows returns the rows of the current page, in local drag order.
func (t *Table) PageRows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageRowsLocked(t.filteredLocked())
}

func (t *Table) pageRowsLocked(rows []Row) []Row {
	page := rows
	if t.pageSize != PageSizeAll {
		start := t.pageIndex * t.pageSize
		if start >= len(rows) {
			return []Row{}
		}
		end := min(start+t.pageSize, len(rows))
		page = rows[start:end]
	}

	out := make([]Row, len(page))
	if len(t.rowOrder) != len(page) {
		copy(out, page)
		return out
	}
	for i, idx := range t.rowOrder {
		out[i] = page[idx]
	}
	return out
}

// MoveRow moves the row at position from to position to within the current
// page. The order is display-only and is discarded by SetData and by any
// change to filters, search, sort or pagination.
func (t *Table) MoveRow(from, to int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.pageRowsLocked(t.filteredLocked()))
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: %d -> %d of %d", ErrRowOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}

	order := t.rowOrder
	if len(order) != n {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	moved := order[from]
	order = slices.Delete(order, from, from+1)
	order = slices.Insert(order, to, moved)
	t.rowOrder = order
	return nil
}

// FilterOptions returns the options of a select filter, derived from the
// data when the filter is marked dynamic.
func (t *Table) FilterOptions(field, allLabel string) []Option {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, spec := range t.cfg.Filters {
		if spec.Field != field || spec.Kind != FilterSelect {
			continue
		}
		if spec.DynamicOptions {
			return DynamicOptions(t.data, field, allLabel)
		}
		opts := make([]Option, 0, len(spec.Options)+1)
		opts = append(opts, Option{Value: SelectAll, Label: allLabel})
		return append(opts, spec.Options...)
	}
	return nil
}

// RowLink returns the navigation target for a row: the link prefix followed
// by the first id-like field with a value. Fields are tried in column order,
// then the remaining keys alphabetically.
func (t *Table) RowLink(row Row) (string, bool) {
	prefix := t.cfg.RowLinkPrefix
	if prefix == "" {
		return "", false
	}

	keys := make([]string, 0, len(row))
	seen := make(map[string]bool, len(row))
	for _, c := range t.cfg.Columns {
		if _, ok := row[c.ID]; ok {
			keys = append(keys, c.ID)
			seen[c.ID] = true
		}
	}
	rest := make([]string, 0, len(row))
	for k := range row {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	for _, k := range keys {
		if !strings.Contains(strings.ToLower(k), "id") {
			continue
		}
		v := row[k]
		if isNullish(v) {
			continue
		}
		id := Stringify(v)
		if id == "" || id == "0" || id == "false" {
			return "", false
		}
		return strings.TrimRight(prefix, "/") + "/" + id, true
	}
	return "", false
}

func (t *Table) isDateKey(key string) bool {
	for _, spec := range t.cfg.Filters {
		if spec.Kind != FilterDate && spec.Kind != FilterDateRange {
			continue
		}
		if slices.Contains(spec.Keys(), key) {
			return true
		}
	}
	return false
}

func (t *Table) column(field string) (Column, bool) {
	for _, c := range t.cfg.Columns {
		if c.ID == field {
			return c, true
		}
	}
	return Column{}, false
}

// Snapshot is a consistent read of everything needed to render the table.
type Snapshot struct {
	Columns          []Column
	Hidden           []Column
	Rows             []Row
	Sort             Sort
	Search           string
	FilterValues     map[string]string
	HasActiveFilters bool
	PageIndex        int
	PageSize         int
	PageCount        int
	FilteredCount    int
	TotalCount       int
}

// Snapshot returns the rendered state of the table under one lock.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.filteredLocked()
	s := Snapshot{
		Columns:          t.visibleColumnsLocked(),
		Rows:             t.pageRowsLocked(rows),
		Sort:             t.sort,
		Search:           t.search,
		FilterValues:     make(map[string]string, len(t.filters)),
		HasActiveFilters: t.hasActiveFiltersLocked(),
		PageIndex:        t.pageIndex,
		PageSize:         t.pageSize,
		PageCount:        t.pageCountLocked(rows),
		FilteredCount:    len(rows),
		TotalCount:       len(t.data),
	}
	for _, c := range t.cfg.Columns {
		if !t.visible[c.ID] {
			s.Hidden = append(s.Hidden, c)
		}
	}
	for k, v := range t.filters {
		s.FilterValues[k] = v
	}
	return s
}
