// Package clearbooks logs in to ClearBooks and downloads timesheets, purchase orders, bills and
// invoices as tables.
package clearbooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/springboardpro/clearbooks/pkg/httpclient"
)

const (
	// DefaultBaseURL is the ClearBooks web application.
	DefaultBaseURL = "https://secure.clearbooks.co.uk/"
	// DefaultCompany is the company path segment used in report URLs.
	DefaultCompany = "springboardproltd"
	// DefaultTimeout bounds each HTTP round trip of the default transport.
	DefaultTimeout = 20 * time.Second
	// DefaultTimesheetStep is the window of one timesheet request. ClearBooks does not answer
	// requests for much larger amounts of timesheet data.
	DefaultTimesheetStep = 365 * 24 * time.Hour
)

// Options configures a Client. Only Credentials is required.
type Options struct {
	Credentials Credentials
	BaseURL     string
	Company     string
	// HTTPClient replaces the default resty transport. It must keep cookies between calls.
	HTTPClient httpclient.Client
	// Timeout applies to the default transport only.
	Timeout       time.Duration
	TimesheetStep time.Duration
	Logger        Logger
	Now           func() time.Time
}

type endpoints struct {
	loginForm string
	loginPage string
	report    string
	timesheet string
}

// Client holds one ClearBooks session. It logs in once and reuses the session for every
// fetch. A Client is not safe for concurrent use; give each goroutine its own.
type Client struct {
	creds         Credentials
	http          httpclient.Client
	endpoints     endpoints
	step          time.Duration
	log           Logger
	now           func() time.Time
	authenticated bool
}

// New builds a Client. It performs no network I/O.
func New(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}

	eps, err := buildEndpoints(opts.BaseURL, opts.Company)
	if err != nil {
		return nil, err
	}

	transport := opts.HTTPClient
	if transport == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		rc, err := httpclient.NewRestyClient(timeout)
		if err != nil {
			return nil, fmt.Errorf("build http client: %w", err)
		}
		transport = rc
	}

	step := opts.TimesheetStep
	if step <= 0 {
		step = DefaultTimesheetStep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		creds:     opts.Credentials,
		http:      transport,
		endpoints: eps,
		step:      step,
		log:       ensureLogger(opts.Logger),
		now:       now,
	}, nil
}

func buildEndpoints(base, company string) (endpoints, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	company = strings.Trim(strings.TrimSpace(company), "/")
	if company == "" {
		company = DefaultCompany
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return endpoints{}, fmt.Errorf("%w: base url %q: %v", ErrInvalidQuery, base, err)
	}
	base = strings.TrimSuffix(base, "/") + "/"

	return endpoints{
		loginForm: base + "account/action/login/cb",
		loginPage: base + "account/action/login/",
		report:    base + company + "/accounting/reports/export-csv/",
		timesheet: base + company + "/accounting/timetracking/view/",
	}, nil
}

// Authenticated reports whether the client currently holds a session.
func (c *Client) Authenticated() bool { return c.authenticated }

// Authenticate logs in with the client's credentials and keeps the session ClearBooks issues.
// Rejected credentials yield ErrAuthentication and leave the client without a session.
func (c *Client) Authenticate(ctx context.Context) error {
	c.authenticated = false

	form := map[string]string{
		"email":    c.creds.Username,
		"password": c.creds.Password,
	}
	resp, err := c.http.PostForm(ctx, c.endpoints.loginForm, form, nil)
	if err != nil {
		return &Error{Kind: ErrRemoteRequest, Detail: "login request", Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: ErrAuthentication, Status: status, Detail: loginFailureMessage(resp.Body())}
	case !isSuccess(status):
		return &Error{Kind: ErrRemoteRequest, Status: status, Detail: "login: " + responseSnippet(resp.Body())}
	case sameEndpoint(resp.FinalURL(), c.endpoints.loginPage):
		msg := loginFailureMessage(resp.Body())
		c.log.ErrorObj("clearbooks login rejected", "clearbooks_login", map[string]any{
			"user":  c.creds.Username,
			"error": msg,
		})
		return &Error{Kind: ErrAuthentication, Status: status, Detail: msg}
	}

	c.authenticated = true
	c.log.DebugObj("clearbooks login succeeded", "clearbooks_login", map[string]any{
		"user": c.creds.Username,
	})
	return nil
}

// ensureSession logs in only when no session is held yet.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.authenticated {
		return nil
	}
	return c.Authenticate(ctx)
}

// Fetch downloads one resource. It logs in first if the client has no session. The returned
// table belongs to the caller. Every call is a fresh round trip; nothing is cached or retried.
func (c *Client) Fetch(ctx context.Context, resource Resource, q Query) (*Table, error) {
	def, err := lookupResource(resource)
	if err != nil {
		return nil, err
	}
	q, err = q.resolve(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	if resource == Timesheets {
		return c.fetchTimesheets(ctx, def, q)
	}
	return c.fetchExport(ctx, def, q)
}

// Bills returns bills with an accounting date in q's window.
func (c *Client) Bills(ctx context.Context, q Query) (*Table, error) {
	return c.Fetch(ctx, Bills, q)
}

// Invoices returns sales invoices in q's window.
func (c *Client) Invoices(ctx context.Context, q Query) (*Table, error) {
	return c.Fetch(ctx, Invoices, q)
}

// PurchaseOrders returns purchase orders in q's window.
func (c *Client) PurchaseOrders(ctx context.Context, q Query) (*Table, error) {
	return c.Fetch(ctx, PurchaseOrders, q)
}

// Timesheets returns timesheet entries in q's window with Datetime, Working_Days and Quarter added.
func (c *Client) Timesheets(ctx context.Context, q Query) (*Table, error) {
	return c.Fetch(ctx, Timesheets, q)
}

func (c *Client) fetchExport(ctx context.Context, def resourceDef, q Query) (*Table, error) {
	params := make(map[string]string, len(q.Params)+3)
	for k, v := range q.Params {
		params[k] = v
	}
	params["report_type"] = def.reportType
	params["q_from"] = formatDate(q.From)
	params["q_to"] = formatDate(q.To)

	c.log.DebugObj("requesting clearbooks export", "clearbooks_request", map[string]any{
		"resource": def.resource,
		"params":   params,
	})
	resp, err := c.http.PostForm(ctx, c.endpoints.report, params, nil)
	body, err := c.checkResponse(def.resource, params, resp, err)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.log.InfoObj("no rows found", "clearbooks_empty", map[string]any{
			"resource": def.resource,
			"from":     q.From.Format(isoDate),
			"to":       q.To.Format(isoDate),
		})
		return NewTable(def.columns), nil
	}

	table, err := def.parseCSV(body)
	if err != nil {
		return nil, &Error{Kind: ErrParse, Resource: def.resource, Params: params, Err: err}
	}
	return table, nil
}

// checkResponse classifies a round trip and returns the body of a usable CSV answer.
func (c *Client) checkResponse(resource Resource, params map[string]string, resp httpclient.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, &Error{Kind: ErrRemoteRequest, Resource: resource, Params: params, Err: err}
	}

	status := resp.StatusCode()
	body := resp.Body()

	if status == http.StatusUnauthorized || sameEndpoint(resp.FinalURL(), c.endpoints.loginPage) {
		c.authenticated = false
		return nil, &Error{Kind: ErrAuthentication, Resource: resource, Params: params, Status: status, Detail: "session expired"}
	}
	if status == http.StatusForbidden {
		return nil, &Error{Kind: ErrPermission, Resource: resource, Params: params, Status: status, Detail: responseSnippet(body)}
	}
	if !isSuccess(status) {
		return nil, &Error{Kind: ErrRemoteRequest, Resource: resource, Params: params, Status: status, Detail: responseSnippet(body)}
	}

	if looksLikeHTML(resp.ContentType(), body) {
		page, perr := parseHTMLPage(body)
		if perr != nil {
			return nil, &Error{Kind: ErrParse, Resource: resource, Params: params, Status: status, Err: perr}
		}
		switch {
		case page.loginForm:
			c.authenticated = false
			return nil, &Error{Kind: ErrAuthentication, Resource: resource, Params: params, Status: status, Detail: "session expired"}
		case page.deniesPermission():
			c.log.WarnObj("clearbooks denied access to resource", "clearbooks_permission", map[string]any{
				"resource": resource,
				"user":     c.creds.Username,
				"message":  page.summary(),
			})
			return nil, &Error{Kind: ErrPermission, Resource: resource, Params: params, Status: status, Detail: page.summary()}
		default:
			return nil, &Error{Kind: ErrParse, Resource: resource, Params: params, Status: status, Detail: "expected csv, got html page: " + page.summary()}
		}
	}
	return body, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// sameEndpoint compares scheme-less host and path, ignoring a trailing slash and the query.
func sameEndpoint(got, want string) bool {
	if got == "" {
		return false
	}
	g, err := url.Parse(got)
	if err != nil {
		return false
	}
	w, err := url.Parse(want)
	if err != nil {
		return false
	}
	return strings.EqualFold(g.Host, w.Host) &&
		strings.TrimSuffix(g.Path, "/") == strings.TrimSuffix(w.Path, "/")
}
