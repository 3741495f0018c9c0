package clearbooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/springboardpro/clearbooks/pkg/httpclient"
)

const (
	testBase      = "https://cb.test/"
	testLoginForm = testBase + "account/action/login/cb"
	testLoginPage = testBase + "account/action/login/"
	testDashboard = testBase + "acme/accounting/home/dashboard"
	testReport    = testBase + "acme/accounting/reports/export-csv/"
	testTimesheet = testBase + "acme/accounting/timetracking/view/"
	testPassword  = "s3cret"
)

const loginErrorPage = `<!DOCTYPE html><html><head><title>Log in</title></head><body>
<div class="error">Incorrect email or password.</div>
<form method="post"><input name="email"><input type="password" name="password"></form>
</body></html>`

const poCSV = `clearbooks_id,prefix,accounting_date,reference,invoice_date,description,company_name,net,vat,gross,status,project_name
101,PO,03/05/2021,R1,04/05/2021,Paper,Acme Ltd,100.00,20.00,120.00,approved,Alpha
102,PO,05/05/2021,R2,06/05/2021,Ink,Beta plc,"1,000.50",200.10,1200.60,approved,Beta
103,PO,07/05/2021,R3,,Toner,Gamma,50,10,60,draft,
`

type mockResponse struct {
	body        []byte
	statusCode  int
	finalURL    string
	contentType string
}

func (r mockResponse) Body() []byte        { return r.body }
func (r mockResponse) StatusCode() int     { return r.statusCode }
func (r mockResponse) FinalURL() string    { return r.finalURL }
func (r mockResponse) ContentType() string { return r.contentType }

type mockCall struct {
	method string
	url    string
	params map[string]string
}

// mockTransport plays the ClearBooks web app: a login endpoint plus a handler for data calls.
type mockTransport struct {
	loginCalls int
	calls      []mockCall
	handle     func(call mockCall) (mockResponse, error)
}

func (m *mockTransport) Get(_ context.Context, url string, params map[string]string, _ map[string]string) (httpclient.Response, error) {
	return m.do(mockCall{method: http.MethodGet, url: url, params: params})
}

func (m *mockTransport) PostForm(_ context.Context, url string, form map[string]string, _ map[string]string) (httpclient.Response, error) {
	return m.do(mockCall{method: http.MethodPost, url: url, params: form})
}

func (m *mockTransport) do(call mockCall) (httpclient.Response, error) {
	if call.url == testLoginForm {
		m.loginCalls++
		if call.params["password"] != testPassword {
			return mockResponse{body: []byte(loginErrorPage), statusCode: 200, finalURL: testLoginPage, contentType: "text/html"}, nil
		}
		return mockResponse{statusCode: 200, finalURL: testDashboard, contentType: "text/html"}, nil
	}
	m.calls = append(m.calls, call)
	if m.handle == nil {
		return mockResponse{statusCode: 200, finalURL: call.url}, nil
	}
	resp, err := m.handle(call)
	if err != nil {
		return nil, err
	}
	if resp.finalURL == "" {
		resp.finalURL = call.url
	}
	if resp.statusCode == 0 {
		resp.statusCode = 200
	}
	return resp, nil
}

func csvResponse(body string) func(mockCall) (mockResponse, error) {
	return func(mockCall) (mockResponse, error) {
		return mockResponse{body: []byte(body), contentType: "text/csv"}, nil
	}
}

func newTestClient(t *testing.T, transport *mockTransport, password string) *Client {
	t.Helper()
	c, err := New(Options{
		Credentials: Credentials{Username: "me@example.com", Password: password},
		BaseURL:     testBase,
		Company:     "acme",
		HTTPClient:  transport,
		Now: func() time.Time {
			return time.Date(2021, time.June, 7, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func may2021() Query {
	return Between(time.Date(2021, 5, 3, 0, 0, 0, 0, time.UTC), time.Date(2021, 6, 7, 0, 0, 0, 0, time.UTC))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Options{Credentials: Credentials{Username: "me@example.com"}})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestAuthenticateThenFetchReusesSession(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := client.PurchaseOrders(context.Background(), may2021()); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if transport.loginCalls != 1 {
		t.Fatalf("expected a single login, got %d", transport.loginCalls)
	}
	if len(transport.calls) != 3 {
		t.Fatalf("expected 3 data requests, got %d", len(transport.calls))
	}
}

func TestFetchLogsInImplicitlyOnce(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	if client.Authenticated() {
		t.Fatalf("new client must not hold a session")
	}
	if _, err := client.Fetch(context.Background(), PurchaseOrders, may2021()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := client.Fetch(context.Background(), Bills, may2021()); err == nil {
		t.Fatalf("expected parse error for purchase order CSV served as bills")
	}
	if transport.loginCalls != 1 {
		t.Fatalf("expected implicit login exactly once, got %d", transport.loginCalls)
	}
	if !client.Authenticated() {
		t.Fatalf("expected session to be kept")
	}
}

func TestAuthenticateRejectsInvalidCredentials(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, "wrong")

	err := client.Authenticate(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if !strings.Contains(err.Error(), "Incorrect email or password.") {
		t.Fatalf("expected login page message in error, got %q", err.Error())
	}
	if client.Authenticated() {
		t.Fatalf("no session may be stored after a rejected login")
	}

	_, err = client.Fetch(context.Background(), PurchaseOrders, may2021())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication from Fetch, got %v", err)
	}
	if len(transport.calls) != 0 {
		t.Fatalf("no data request may be issued without a session, got %d", len(transport.calls))
	}
}

func TestAuthenticateTransportFailure(t *testing.T) {
	transport := &mockTransport{}
	client := newTestClient(t, transport, testPassword)
	client.http = failingTransport{err: errors.New("dial tcp: connection refused")}

	err := client.Authenticate(context.Background())
	if !errors.Is(err, ErrRemoteRequest) {
		t.Fatalf("expected ErrRemoteRequest, got %v", err)
	}
}

type failingTransport struct{ err error }

func (f failingTransport) Get(context.Context, string, map[string]string, map[string]string) (httpclient.Response, error) {
	return nil, f.err
}

func (f failingTransport) PostForm(context.Context, string, map[string]string, map[string]string) (httpclient.Response, error) {
	return nil, f.err
}

func TestFetchPermissionDenied(t *testing.T) {
	cases := map[string]mockResponse{
		"forbidden status": {statusCode: http.StatusForbidden, body: []byte("Forbidden")},
		"html notice": {
			contentType: "text/html; charset=utf-8",
			body: []byte(`<html><head><title>ClearBooks</title></head><body>
<div class="alert alert-danger">You do not have permission to view this report.</div></body></html>`),
		},
	}

	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			resp := resp
			transport := &mockTransport{handle: func(mockCall) (mockResponse, error) { return resp, nil }}
			client := newTestClient(t, transport, testPassword)

			table, err := client.Bills(context.Background(), may2021())
			if !errors.Is(err, ErrPermission) {
				t.Fatalf("expected ErrPermission, got %v", err)
			}
			if table != nil {
				t.Fatalf("expected no table on failure")
			}
			var cbErr *Error
			if !errors.As(err, &cbErr) || cbErr.Resource != Bills {
				t.Fatalf("expected error to name the resource, got %#v", err)
			}
		})
	}
}

func TestFetchReturnsRowsInOrder(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	table, err := client.PurchaseOrders(context.Background(), may2021())
	if err != nil {
		t.Fatalf("PurchaseOrders: %v", err)
	}
	if diff := cmp.Diff(PurchaseOrderColumns, table.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	if got := table.Column("clearbooks_id"); !cmp.Equal(got, []string{"101", "102", "103"}) {
		t.Fatalf("row order not preserved: %v", got)
	}
	if got := table.Value(0, "accounting_date"); got != "2021-05-03" {
		t.Fatalf("expected ISO accounting date, got %q", got)
	}
	if got := table.Value(2, "invoice_date"); got != "" {
		t.Fatalf("expected empty invoice date to stay empty, got %q", got)
	}
	net, err := table.Float(1, "net")
	if err != nil || net != 1000.5 {
		t.Fatalf("expected net 1000.5, got %v err=%v", net, err)
	}

	call := transport.calls[0]
	if call.method != http.MethodPost || call.url != testReport {
		t.Fatalf("unexpected request %s %s", call.method, call.url)
	}
	want := map[string]string{"report_type": "POS", "q_from": "03/05/2021", "q_to": "07/06/2021"}
	if diff := cmp.Diff(want, call.params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"missing column": "clearbooks_id,prefix\n1,PO\n",
		"ragged row":     strings.Replace(poCSV, "Alpha\n", "Alpha,extra\n", 1),
		"bad date":       strings.Replace(poCSV, "03/05/2021", "yesterday", 1),
		"bad number":     strings.Replace(poCSV, "100.00", "lots", 1),
		"html page":      "<!DOCTYPE html><html><head><title>Oops</title></head><body>Something went wrong</body></html>",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			transport := &mockTransport{handle: csvResponse(body)}
			client := newTestClient(t, transport, testPassword)

			table, err := client.PurchaseOrders(context.Background(), may2021())
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if table != nil {
				t.Fatalf("expected no partial data, got %d rows", table.Len())
			}
		})
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	first, err := client.PurchaseOrders(context.Background(), may2021())
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := client.PurchaseOrders(context.Background(), may2021())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("tables differ (-first +second):\n%s", diff)
	}
	if !first.Equal(second) {
		t.Fatalf("Equal disagrees with cmp")
	}
	if len(transport.calls) != 2 {
		t.Fatalf("expected two round trips without caching, got %d", len(transport.calls))
	}
}

func TestFetchEmptyBodyKeepsColumns(t *testing.T) {
	for _, tc := range []struct {
		resource Resource
		columns  []string
	}{
		{Bills, BillColumns},
		{Invoices, InvoiceColumns},
		{PurchaseOrders, PurchaseOrderColumns},
	} {
		transport := &mockTransport{handle: csvResponse("")}
		client := newTestClient(t, transport, testPassword)

		table, err := client.Fetch(context.Background(), tc.resource, may2021())
		if err != nil {
			t.Fatalf("%s: %v", tc.resource, err)
		}
		if table.Len() != 0 {
			t.Fatalf("%s: expected no rows, got %d", tc.resource, table.Len())
		}
		if diff := cmp.Diff(tc.columns, table.Columns); diff != "" {
			t.Fatalf("%s: columns mismatch (-want +got):\n%s", tc.resource, diff)
		}
	}
}

func TestFetchRejectsReversedDatesBeforeIO(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	_, err := client.Bills(context.Background(), Between(
		time.Date(2021, 10, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 10, 24, 0, 0, 0, 0, time.UTC),
	))
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if transport.loginCalls != 0 || len(transport.calls) != 0 {
		t.Fatalf("expected no network I/O, got %d logins %d calls", transport.loginCalls, len(transport.calls))
	}
}

func TestFetchUnknownResource(t *testing.T) {
	client := newTestClient(t, &mockTransport{}, testPassword)
	if _, err := client.Fetch(context.Background(), Resource("payroll"), Query{}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestFetchDefaultsWindow(t *testing.T) {
	transport := &mockTransport{handle: csvResponse("")}
	client := newTestClient(t, transport, testPassword)

	if _, err := client.Invoices(context.Background(), Query{Params: map[string]string{"project": "7"}}); err != nil {
		t.Fatalf("Invoices: %v", err)
	}
	want := map[string]string{"report_type": "SALES", "q_from": "01/01/2014", "q_to": "07/06/2021", "project": "7"}
	if diff := cmp.Diff(want, transport.calls[0].params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchExpiredSessionLogsInAgainNextTime(t *testing.T) {
	expired := true
	transport := &mockTransport{}
	transport.handle = func(mockCall) (mockResponse, error) {
		if expired {
			expired = false
			return mockResponse{finalURL: testLoginPage, contentType: "text/html", body: []byte(loginErrorPage)}, nil
		}
		return mockResponse{body: []byte(poCSV), contentType: "text/csv"}, nil
	}
	client := newTestClient(t, transport, testPassword)

	_, err := client.PurchaseOrders(context.Background(), may2021())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication on expired session, got %v", err)
	}
	if client.Authenticated() {
		t.Fatalf("expired session must be dropped")
	}

	if _, err := client.PurchaseOrders(context.Background(), may2021()); err != nil {
		t.Fatalf("fetch after re-login: %v", err)
	}
	if transport.loginCalls != 2 {
		t.Fatalf("expected a second login, got %d", transport.loginCalls)
	}
}

func TestFetchRemoteRequestError(t *testing.T) {
	transport := &mockTransport{handle: func(mockCall) (mockResponse, error) {
		return mockResponse{statusCode: http.StatusInternalServerError, body: []byte("boom")}, nil
	}}
	client := newTestClient(t, transport, testPassword)

	_, err := client.Invoices(context.Background(), may2021())
	if !errors.Is(err, ErrRemoteRequest) {
		t.Fatalf("expected ErrRemoteRequest, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"resource=invoices", "status=500", "report_type=SALES", "boom"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in error %q", want, msg)
		}
	}

	transport.handle = func(mockCall) (mockResponse, error) { return mockResponse{}, fmt.Errorf("timeout") }
	if _, err := client.Invoices(context.Background(), may2021()); !errors.Is(err, ErrRemoteRequest) {
		t.Fatalf("expected ErrRemoteRequest on transport error, got %v", err)
	}
}

func TestFetchCSVServedAsHTML(t *testing.T) {
	body := strings.Replace(poCSV, "Paper", "Paper (permission slip)", 1)
	transport := &mockTransport{handle: func(mockCall) (mockResponse, error) {
		return mockResponse{body: []byte(body), contentType: "text/html; charset=UTF-8"}, nil
	}}
	client := newTestClient(t, transport, testPassword)

	table, err := client.PurchaseOrders(context.Background(), may2021())
	if err != nil {
		t.Fatalf("PurchaseOrders: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	if got := table.Value(0, "description"); got != "Paper (permission slip)" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"csv as html", "text/html", poCSV, false},
		{"csv with bom", "text/html", "\xEF\xBB\xBF" + poCSV, false},
		{"empty body", "text/html", "  \n", false},
		{"doctype", "text/csv", "\n<!DOCTYPE html><html></html>", true},
		{"html tag", "", "<HTML><body>x</body></HTML>", true},
		{"fragment as html", "text/html", "<div class=\"error\">denied</div>", true},
		{"fragment as csv", "text/csv", "<div>", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeHTML(tc.contentType, []byte(tc.body)); got != tc.want {
				t.Fatalf("looksLikeHTML = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFetchRejectsReservedParams(t *testing.T) {
	for _, key := range []string{"report_type", "q_from", "q_to", "csv", "from", "to", "filter-submit"} {
		t.Run(key, func(t *testing.T) {
			transport := &mockTransport{handle: csvResponse(poCSV)}
			client := newTestClient(t, transport, testPassword)

			q := may2021()
			q.Params = map[string]string{key: "SALES"}
			_, err := client.PurchaseOrders(context.Background(), q)
			if !errors.Is(err, ErrInvalidQuery) {
				t.Fatalf("expected ErrInvalidQuery, got %v", err)
			}
			if transport.loginCalls != 0 || len(transport.calls) != 0 {
				t.Fatalf("rejected query must not touch the network")
			}
		})
	}
}

func TestFetchPassesExtraFilters(t *testing.T) {
	transport := &mockTransport{handle: csvResponse(poCSV)}
	client := newTestClient(t, transport, testPassword)

	q := may2021()
	q.Params = map[string]string{"filter[project_id]": "12"}
	if _, err := client.PurchaseOrders(context.Background(), q); err != nil {
		t.Fatalf("PurchaseOrders: %v", err)
	}
	if got := transport.calls[0].params; got["filter[project_id]"] != "12" || got["report_type"] != "POS" {
		t.Fatalf("unexpected params %v", got)
	}
}

func TestResponseSnippetKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("a", 511) + "€uro"
	got := responseSnippet([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[len(got)-8:])
	}
	if want := strings.Repeat("a", 511) + "..."; got != want {
		t.Fatalf("expected cut before the multi-byte rune, got suffix %q", got[len(got)-8:])
	}
}
