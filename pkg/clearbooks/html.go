package clearbooks

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ClearBooks answers with an HTML page instead of CSV when the session has expired or the
// account's role does not cover the requested report.

var permissionPhrases = []string{
	"permission",
	"not authorised",
	"not authorized",
	"access denied",
	"do not have access",
	"don't have access",
}

type htmlPage struct {
	title     string
	message   string
	text      string
	loginForm bool
}

// looksLikeHTML decides from the body. ClearBooks serves CSV exports as text/html too, so the
// content type only settles a body that opens with a tag other than <html> or a doctype.
func looksLikeHTML(contentType string, body []byte) bool {
	head := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(head) > 256 {
		head = head[:256]
	}
	head = bytes.ToLower(head)
	switch {
	case len(head) == 0 || head[0] != '<':
		return false
	case bytes.HasPrefix(head, []byte("<!doctype html")), bytes.HasPrefix(head, []byte("<html")):
		return true
	default:
		return strings.Contains(strings.ToLower(contentType), "html")
	}
}

func parseHTMLPage(body []byte) (htmlPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return htmlPage{}, err
	}

	page := htmlPage{
		title:     strings.TrimSpace(doc.Find("title").First().Text()),
		text:      strings.Join(strings.Fields(doc.Find("body").Text()), " "),
		loginForm: doc.Find(`form input[type="password"]`).Length() > 0,
	}
	for _, sel := range []string{".error", ".alert-danger", ".alert", ".message", "#error", ".flash"} {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if msg := strings.Join(strings.Fields(node.Text()), " "); msg != "" {
				page.message = msg
				break
			}
		}
	}
	return page, nil
}

func (p htmlPage) deniesPermission() bool {
	haystack := strings.ToLower(p.title + " " + p.message + " " + p.text)
	for _, phrase := range permissionPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

func (p htmlPage) summary() string {
	switch {
	case p.message != "":
		return p.message
	case p.title != "":
		return p.title
	default:
		return responseSnippet([]byte(p.text))
	}
}

// loginFailureMessage extracts the error ClearBooks shows on its login page.
func loginFailureMessage(body []byte) string {
	const fallback = "incorrect username or password"
	if len(bytes.TrimSpace(body)) == 0 {
		return fallback
	}
	page, err := parseHTMLPage(body)
	if err != nil || page.message == "" {
		return fallback
	}
	return page.message
}
