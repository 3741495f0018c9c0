package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/springboardpro/clearbooks/internal/report"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

func newWriter(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

// renderHead prints the first n rows with every column.
func renderHead(out io.Writer, src *clearbooks.Table, n int) {
	t := newWriter(out)
	header := make(table.Row, len(src.Columns))
	for i, c := range src.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for i := 0; i < src.Len() && i < n; i++ {
		values := src.Values(i)
		row := make(table.Row, len(values))
		for j, v := range values {
			row[j] = v
		}
		t.AppendRow(row)
	}
	t.SetCaption("%d of %d rows", min(n, src.Len()), src.Len())
	t.Render()
}

func renderMoney(out io.Writer, s report.MoneySummary) {
	t := newWriter(out)
	t.AppendHeader(table.Row{"Rows", "Total VAT", "Mean net", "Median net"})
	t.AppendRow(table.Row{s.Rows, money(s.TotalVAT), money(s.MeanNet), money(s.MedianNet)})
	t.Render()
}

func renderEmployeeDays(out io.Writer, days []report.EmployeeDays) {
	t := newWriter(out)
	t.AppendHeader(table.Row{"Employee", "Working days"})
	for _, d := range days {
		t.AppendRow(table.Row{d.Employee, fmt.Sprintf("%.2f", d.WorkingDays)})
	}
	t.Render()
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }
