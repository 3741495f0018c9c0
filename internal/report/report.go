// Package report computes the summaries cbreport prints for downloaded tables.
package report

import (
	"fmt"
	"sort"

	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

// MoneySummary aggregates the money columns of bills, invoices and purchase orders.
type MoneySummary struct {
	Rows      int
	TotalVAT  float64
	MeanNet   float64
	MedianNet float64
}

// Money sums the vat column and averages the net column. Empty cells count as zero.
func Money(t *clearbooks.Table) (MoneySummary, error) {
	var out MoneySummary
	if t == nil || t.Len() == 0 {
		return out, nil
	}
	for _, col := range []string{"vat", "net"} {
		if !t.HasColumn(col) {
			return out, fmt.Errorf("table has no %s column", col)
		}
	}

	nets := make([]float64, 0, t.Len())
	var netTotal float64
	for i := 0; i < t.Len(); i++ {
		vat, err := t.Float(i, "vat")
		if err != nil {
			return out, fmt.Errorf("row %d vat: %w", i, err)
		}
		net, err := t.Float(i, "net")
		if err != nil {
			return out, fmt.Errorf("row %d net: %w", i, err)
		}
		out.TotalVAT += vat
		netTotal += net
		nets = append(nets, net)
	}
	out.Rows = t.Len()
	out.MeanNet = netTotal / float64(len(nets))
	out.MedianNet = median(nets)
	return out, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// EmployeeDays is the booked time of one employee.
type EmployeeDays struct {
	Employee    string
	WorkingDays float64
}

// WorkingDaysByEmployee totals Working_Days per employee, smallest first.
// Ties are ordered by name.
func WorkingDaysByEmployee(t *clearbooks.Table) ([]EmployeeDays, error) {
	if t == nil || t.Len() == 0 {
		return nil, nil
	}
	for _, col := range []string{clearbooks.TimesheetEmployee, clearbooks.TimesheetWorkingDays} {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("table has no %s column", col)
		}
	}

	totals := make(map[string]float64)
	for i := 0; i < t.Len(); i++ {
		days, err := t.Float(i, clearbooks.TimesheetWorkingDays)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		totals[t.Value(i, clearbooks.TimesheetEmployee)] += days
	}

	out := make([]EmployeeDays, 0, len(totals))
	for name, days := range totals {
		out = append(out, EmployeeDays{Employee: name, WorkingDays: days})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkingDays != out[j].WorkingDays {
			return out[i].WorkingDays < out[j].WorkingDays
		}
		return out[i].Employee < out[j].Employee
	})
	return out, nil
}
