package clearbooks

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HoursPerDay is the length of a working day used for Working_Days.
const HoursPerDay = 8

// fetchTimesheets downloads the window in step-sized chunks on one session and adds the
// derived columns to the combined table.
func (c *Client) fetchTimesheets(ctx context.Context, def resourceDef, q Query) (*Table, error) {
	combined := &Table{Rows: []Row{}}
	for from := q.From; !from.After(q.To); from = from.Add(c.step).AddDate(0, 0, 1) {
		to := from.Add(c.step)
		if q.To.Before(to) {
			to = q.To
		}
		chunk, err := c.fetchTimesheetChunk(ctx, def, from, to, q.Params)
		if err != nil {
			return nil, err
		}
		combined.Append(chunk)
	}

	table, err := deriveTimesheetColumns(combined)
	if err != nil {
		return nil, &Error{
			Kind:     ErrParse,
			Resource: Timesheets,
			Params:   map[string]string{"from": formatDate(q.From), "to": formatDate(q.To)},
			Err:      err,
		}
	}
	return table, nil
}

func (c *Client) fetchTimesheetChunk(ctx context.Context, def resourceDef, from, to time.Time, extra map[string]string) (*Table, error) {
	// ClearBooks returns no CSV unless at least one filter is set, and a 500 without filter-submit.
	params := map[string]string{"filter[employee_id]": "*"}
	for k, v := range extra {
		params[k] = v
	}
	params["csv"] = "1"
	params["from"] = formatDate(from)
	params["to"] = formatDate(to)
	params["filter-submit"] = "Find"

	c.log.DebugObj("requesting clearbooks timesheets", "clearbooks_request", map[string]any{
		"from": from.Format(isoDate),
		"to":   to.Format(isoDate),
	})
	resp, err := c.http.Get(ctx, c.endpoints.timesheet, params, nil)
	body, err := c.checkResponse(Timesheets, params, resp, err)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.log.InfoObj("no timesheets found", "clearbooks_empty", map[string]any{
			"from": from.Format(isoDate),
			"to":   to.Format(isoDate),
		})
		return NewTable(def.columns), nil
	}

	table, err := def.parseCSV(body)
	if err != nil {
		return nil, &Error{Kind: ErrParse, Resource: Timesheets, Params: params, Err: err}
	}
	return table, nil
}

// timesheetLayout replaces Date and Time by a leading Datetime and appends the derived columns.
func timesheetLayout(raw []string) []string {
	out := make([]string, 0, len(raw)+1)
	out = append(out, TimesheetDatetime)
	for _, c := range raw {
		if c == TimesheetDate || c == TimesheetTime {
			continue
		}
		out = append(out, c)
	}
	return append(out, TimesheetWorkingDays, TimesheetQuarter)
}

func deriveTimesheetColumns(raw *Table) (*Table, error) {
	columns := raw.Columns
	if len(columns) == 0 {
		columns = timesheetRequired
	}
	out := NewTable(timesheetLayout(columns))

	for i, row := range raw.Rows {
		derived := make(Row, len(out.Columns))
		for k, v := range row {
			if k == TimesheetDate || k == TimesheetTime {
				continue
			}
			// plotting tools drop values with a leading underscore
			if strings.HasPrefix(v, "_") {
				v = "." + v[1:]
			}
			derived[k] = v
		}

		ts, err := combineDateTime(row[TimesheetDate], row[TimesheetTime])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		days, err := parseNumber(row[TimesheetDays])
		if err != nil {
			return nil, fmt.Errorf("row %d: days: %w", i+1, err)
		}
		hours, err := parseNumber(row[TimesheetHours])
		if err != nil {
			return nil, fmt.Errorf("row %d: hours: %w", i+1, err)
		}
		minutes, err := parseNumber(row[TimesheetMinutes])
		if err != nil {
			return nil, fmt.Errorf("row %d: minutes: %w", i+1, err)
		}

		derived[TimesheetDatetime] = ts.Format(isoDateTime)
		derived[TimesheetWorkingDays] = strconv.FormatFloat(workingDays(days, hours, minutes), 'f', -1, 64)
		derived[TimesheetQuarter] = FiscalQuarter(ts)
		out.Rows = append(out.Rows, derived)
	}
	return out, nil
}

func workingDays(days, hours, minutes float64) float64 {
	return days + hours/HoursPerDay + minutes/(HoursPerDay*60)
}

func combineDateTime(date, clock string) (time.Time, error) {
	d, err := parseRemoteDate(strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("date: %w", err)
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return d, nil
	}
	for _, layout := range []string{"15:04:05", "15:04", "3:04 PM", "3:04PM"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return d.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("time: %q is not a clock time", clock)
}

// FiscalQuarter labels t with its financial quarter. The financial year ends in March and is
// named after the calendar year it ends in, so April to June 2015 is "2016Q1".
func FiscalQuarter(t time.Time) string {
	y, m := t.Year(), int(t.Month())
	if m >= int(time.April) {
		return fmt.Sprintf("%dQ%d", y+1, (m-int(time.April))/3+1)
	}
	return fmt.Sprintf("%dQ4", y)
}
