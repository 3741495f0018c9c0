package clearbooks

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the DD/MM/YYYY layout ClearBooks accepts in URLs and writes in CSV exports.
const DateFormat = "02/01/2006"

// isoDate is the layout dates are normalised to inside a Table.
const isoDate = "2006-01-02"

// StartDate is the first day of data held in ClearBooks; it is the default lower bound of a query.
var StartDate = time.Date(2014, time.January, 1, 0, 0, 0, 0, time.UTC)

// reservedParams select the report and its window; Query.Params may not set them.
var reservedParams = map[string]struct{}{
	"report_type":   {},
	"q_from":        {},
	"q_to":          {},
	"csv":           {},
	"from":          {},
	"to":            {},
	"filter-submit": {},
}

// Query selects rows of a resource. Zero From means StartDate, zero To means today.
// Params are sent verbatim in addition to the date window.
type Query struct {
	From   time.Time
	To     time.Time
	Params map[string]string
}

// Between is a shorthand for a Query over [from, to].
func Between(from, to time.Time) Query {
	return Query{From: from, To: to}
}

// resolve fills defaults and checks the date order.
func (q Query) resolve(today time.Time) (Query, error) {
	out := Query{From: dateOnly(q.From), To: dateOnly(q.To)}
	if q.From.IsZero() {
		out.From = StartDate
	}
	if q.To.IsZero() {
		out.To = dateOnly(today)
	}
	if err := checkDateOrder(out.From, out.To); err != nil {
		return Query{}, err
	}
	if len(q.Params) > 0 {
		out.Params = make(map[string]string, len(q.Params))
		for k, v := range q.Params {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if _, reserved := reservedParams[strings.ToLower(k)]; reserved {
				return Query{}, fmt.Errorf("%w: parameter %q is set by the client", ErrInvalidQuery, k)
			}
			out.Params[k] = v
		}
	}
	return out, nil
}

func checkDateOrder(from, to time.Time) error {
	if from.After(to) {
		return fmt.Errorf("%w: \"to\" (%s) cannot be before \"from\" (%s)", ErrInvalidQuery, to.Format(isoDate), from.Format(isoDate))
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string { return t.Format(DateFormat) }
