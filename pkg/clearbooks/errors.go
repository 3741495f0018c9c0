package clearbooks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrAuthentication means ClearBooks rejected the credentials or the session has expired.
	ErrAuthentication = errors.New("clearbooks: authentication failed")
	// ErrPermission means the account lacks the ClearBooks role needed for the resource.
	ErrPermission = errors.New("clearbooks: permission denied")
	// ErrRemoteRequest covers transport failures and non-success statuses not attributable to auth.
	ErrRemoteRequest = errors.New("clearbooks: remote request failed")
	// ErrParse means the response body does not have the expected tabular shape.
	ErrParse = errors.New("clearbooks: unexpected response format")
	// ErrInvalidQuery is returned before any network I/O for bad input.
	ErrInvalidQuery = errors.New("clearbooks: invalid query")
)

// Error carries the context of a failed call: which resource, which parameters and what
// the remote service answered.
type Error struct {
	Kind     error
	Resource Resource
	Params   map[string]string
	Status   int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	kind := e.Kind
	if kind == nil {
		kind = ErrRemoteRequest
	}
	b.WriteString(kind.Error())
	if e.Resource != "" {
		fmt.Fprintf(&b, " resource=%s", e.Resource)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if len(e.Params) > 0 {
		fmt.Fprintf(&b, " params=%s", formatParams(e.Params))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := params[k]
		if strings.EqualFold(k, "password") {
			v = "***"
		}
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return truncateRunes(s, maxLen) + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
