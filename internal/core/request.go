package core

import (
	"context"
	"io"
	"net/http"
)

// request is a simple Request implementation
type request struct {
	id         string
	method     string
	path       string
	target     string
	rawQuery   string
	remoteAddr string
	headers    map[string][]string
	body       io.ReadCloser
	ctx        context.Context
}

// NewRequest creates a new request
func NewRequest(ctx context.Context, id, method, path, target, rawQuery, remoteAddr string, headers map[string][]string, body io.ReadCloser) Request {
	if headers == nil {
		headers = make(map[string][]string)
	}
	if body == nil {
		body = http.NoBody
	}
	return &request{
		id:         id,
		method:     method,
		path:       path,
		target:     target,
		rawQuery:   rawQuery,
		remoteAddr: remoteAddr,
		headers:    headers,
		body:       body,
		ctx:        ctx,
	}
}

func (r *request) ID() string                   { return r.id }
func (r *request) Method() string               { return r.method }
func (r *request) Path() string                 { return r.path }
func (r *request) Target() string               { return r.target }
func (r *request) RawQuery() string             { return r.rawQuery }
func (r *request) RemoteAddr() string           { return r.remoteAddr }
func (r *request) Headers() map[string][]string { return r.headers }
func (r *request) Body() io.ReadCloser          { return r.body }
func (r *request) Context() context.Context     { return r.ctx }

func (r *request) URL() string {
	if r.rawQuery == "" {
		return r.path
	}
	return r.path + "?" + r.rawQuery
}

// Cookies parses the Cookie headers
func (r *request) Cookies() []*http.Cookie {
	return (&http.Request{Header: http.Header(r.headers)}).Cookies()
}
