package common

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table renders fixed-width ASCII tables for the stats commands
type Table struct {
	columns int
	writer  table.Writer
}

// NewTable creates a table with the given column headers
func NewTable(columns ...string) *Table {
	writer := table.NewWriter()
	writer.SetStyle(table.StyleDefault)
	writer.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	writer.AppendHeader(header)
	return &Table{columns: len(columns), writer: writer}
}

// AddRow appends a row; missing cells render empty and extra cells are dropped
func (t *Table) AddRow(cells ...string) {
	row := make(table.Row, t.columns)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.writer.AppendRow(row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return t.writer.Length()
}

// Render writes the table to w
func (t *Table) Render(w io.Writer) error {
	_, err := io.WriteString(w, t.writer.Render()+"\n")
	return err
}

// HexCell formats an offset or length for a table cell
func HexCell(value int64) string {
	return fmt.Sprintf("0x%08X", value)
}
