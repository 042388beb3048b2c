package core

import (
	"bytes"
	"io"
)

// response is a simple Response implementation
type response struct {
	statusCode int
	headers    map[string][]string
	body       []byte
}

// NewResponse creates a buffered response. A nil headers map is replaced by an empty one.
func NewResponse(statusCode int, headers map[string][]string, body []byte) Response {
	if headers == nil {
		headers = make(map[string][]string)
	}
	return &response{
		statusCode: statusCode,
		headers:    headers,
		body:       body,
	}
}

// NewTextResponse creates a plain text response
func NewTextResponse(statusCode int, text string) Response {
	return NewResponse(statusCode, map[string][]string{
		"Content-Type": {"text/plain; charset=utf-8"},
	}, []byte(text))
}

func (r *response) StatusCode() int              { return r.statusCode }
func (r *response) Headers() map[string][]string { return r.headers }
func (r *response) Body() io.ReadCloser          { return io.NopCloser(bytes.NewReader(r.body)) }
