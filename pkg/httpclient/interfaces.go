package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
	// FinalURL is the URL of the last request after redirects were followed.
	FinalURL() string
	ContentType() string
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Implementations keep cookies between calls; that jar is the session a remote login issues.
type Client interface {
	Get(ctx context.Context, url string, params map[string]string, headers map[string]string) (Response, error)
	PostForm(ctx context.Context, url string, form map[string]string, headers map[string]string) (Response, error)
}
