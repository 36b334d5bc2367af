// Package domain provides the canonical types threaded through the
// enforcement pipeline: decoded requests and responses, caller identity,
// the per-request context, policy inputs and decisions, and validation
// outcomes.
package domain

import "net/http"

// Request is a transport-decoded inbound request. The transport layer has
// already handled framing; the pipeline operates on these fields only and
// never performs network I/O.
type Request struct {
	// Method is the HTTP method (GET, POST, ...).
	Method string

	// Path is the concrete request path (e.g. "/users/123").
	Path string

	// Query is the raw query string, if any.
	Query string

	// Headers holds the decoded request headers.
	Headers http.Header

	// Body is the raw request body.
	Body []byte
}

// Header returns the first value of the named header, or "".
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Response is an encoded-ready response produced by the pipeline. The
// transport layer is responsible for writing it to the wire.
type Response struct {
	// StatusCode is the HTTP status code to send.
	StatusCode int

	// Headers holds response headers to send.
	Headers http.Header

	// Body is the encoded response body.
	Body []byte
}

// SetHeader sets a response header, allocating the header map if needed.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	r.Headers.Set(name, value)
}

// PathParams holds parameters extracted from a matched path template,
// e.g. {"userId": "123"} for template "/users/{userId}" and path "/users/123".
type PathParams map[string]string

// Get returns the named parameter, or "".
func (p PathParams) Get(name string) string {
	return p[name]
}
