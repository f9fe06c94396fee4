package datatable

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultExportName is the download name of an exported table.
const DefaultExportName = "tabela.csv"

// ExportCSV writes the filtered rows, in display order, restricted to the
// visible columns. The header holds column labels; every value is quoted.
func (t *Table) ExportCSV(w io.Writer) error {
	t.mu.Lock()
	cols := t.visibleColumnsLocked()
	rows := t.filteredLocked()
	t.mu.Unlock()

	return WriteCSV(w, cols, rows)
}

// WriteCSV writes rows as CSV with one column per entry of cols.
func WriteCSV(w io.Writer, cols []Column, rows []Row) error {
	bw := bufio.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		label := c.Label
		if label == "" {
			label = c.ID
		}
		header[i] = headerField(label)
	}
	if _, err := bw.WriteString(strings.Join(header, ",")); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	fields := make([]string, len(cols))
	for n, row := range rows {
		for i, c := range cols {
			fields[i] = quoteField(Stringify(row[c.ID]))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write row %d: %w", n, err)
		}
		if _, err := bw.WriteString(strings.Join(fields, ",")); err != nil {
			return fmt.Errorf("write row %d: %w", n, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func headerField(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quoteField(s)
	}
	return s
}
