package core

import (
	"context"
	"io"
	"net/http"
)

// Request represents an incoming request
type Request interface {
	ID() string
	Method() string
	// Path is the inbound URL path
	Path() string
	// Target is the path relative to the service mount, without a leading slash
	Target() string
	// RawQuery is the inbound query string exactly as received
	RawQuery() string
	URL() string
	RemoteAddr() string
	Headers() map[string][]string
	Cookies() []*http.Cookie
	Body() io.ReadCloser
	Context() context.Context
}

// Response represents an outgoing response
type Response interface {
	StatusCode() int
	Headers() map[string][]string
	Body() io.ReadCloser
}

// Handler processes requests
type Handler func(context.Context, Request) (Response, error)

// Middleware wraps handlers
type Middleware func(Handler) Handler
