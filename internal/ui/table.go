package ui

import (
	"io"
	"strings"
	"unicode/utf8"
)

type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Column configures a column in the table.
type Column struct {
	Header string
	Align  Align
	// MaxWidth cuts longer cells in the middle ("web:0.2-bd01…884c"), keeping
	// both the image name and the end of the hash visible. 0 = unlimited.
	MaxWidth int
}

const (
	columnGap = "  "
	ellipsis  = "…"
)

// Table renders aligned plain-text rows, for listings printed to stdout.
type Table struct {
	columns []Column
	rows    [][]string
}

func NewTable(columns ...Column) *Table {
	return &Table{columns: columns}
}

func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) {
			row[i] = truncateMiddle(cells[i], t.columns[i].MaxWidth)
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render(w io.Writer) error {
	if len(t.columns) == 0 {
		return nil
	}

	widths := make([]int, len(t.columns))
	headers := make([]string, len(t.columns))
	for i, c := range t.columns {
		headers[i] = c.Header
		widths[i] = utf8.RuneCountInString(c.Header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	separator := make([]string, len(t.columns))
	for i := range separator {
		separator[i] = strings.Repeat("-", widths[i])
	}

	for _, row := range append([][]string{headers, separator}, t.rows...) {
		if err := t.writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) writeRow(w io.Writer, cells []string, widths []int) error {
	var b strings.Builder
	for i, cell := range cells {
		pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
		if t.columns[i].Align == AlignRight {
			b.WriteString(pad + cell)
		} else {
			b.WriteString(cell + pad)
		}
		if i < len(cells)-1 {
			b.WriteString(columnGap)
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, strings.TrimRight(b.String(), " \n")+"\n")
	return err
}

func truncateMiddle(s string, maxWidth int) string {
	n := utf8.RuneCountInString(s)
	if maxWidth <= 0 || n <= maxWidth {
		return s
	}
	if maxWidth <= 1 {
		return string([]rune(s)[:maxWidth])
	}
	r := []rune(s)
	avail := maxWidth - 1
	left := avail / 2
	right := avail - left
	return string(r[:left]) + ellipsis + string(r[n-right:])
}
