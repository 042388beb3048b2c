// Package dispatch is the entry point for proxied requests: it identifies
// the caller, applies the submission quota and hands the sanitized request
// to the backend forwarder.
package dispatch

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"judge0gw/internal/backend"
	"judge0gw/internal/core"
	"judge0gw/internal/quota"
	"judge0gw/pkg/errors"
)

const (
	// UserIDField is the body field identifying the caller. It is never forwarded.
	UserIDField = "userId"

	// DefaultRateLimitedPrefix selects the code submission route
	DefaultRateLimitedPrefix = "submissions"

	// unsetUserID is treated the same as a missing userId
	unsetUserID = "-"
)

// Admitter decides whether a user may submit
type Admitter interface {
	Admit(ctx context.Context, userID string) (quota.Decision, error)
}

// Forwarder sends a sanitized request to the backend
type Forwarder interface {
	Forward(ctx context.Context, out backend.Outbound) (core.Response, error)
}

// Config configures a Dispatcher
type Config struct {
	// RateLimitedPrefix is matched against the target path; matching requests consume quota
	RateLimitedPrefix string
}

// Dispatcher handles requests addressed to the backend service
type Dispatcher struct {
	admitter  Admitter
	forwarder Forwarder
	prefix    string
	logger    *slog.Logger
}

// New creates a dispatcher
func New(admitter Admitter, forwarder Forwarder, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.RateLimitedPrefix == "" {
		cfg.RateLimitedPrefix = DefaultRateLimitedPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		admitter:  admitter,
		forwarder: forwarder,
		prefix:    cfg.RateLimitedPrefix,
		logger:    logger.With("component", "dispatcher"),
	}
}

// RateLimited reports whether target consumes quota
func (d *Dispatcher) RateLimited(target string) bool {
	return strings.HasPrefix(target, d.prefix)
}

// Handle implements core.Handler
func (d *Dispatcher) Handle(ctx context.Context, req core.Request) (core.Response, error) {
	body, err := readBody(req.Body())
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "Invalid JSON body").
				WithCause(err).
				WithException(err.Error())
		}
		return nil, errors.Newf(errors.ErrorTypeInternal, "Internal server error: %v", err).WithCause(err)
	}

	userID, ok := ExtractUserID(body)
	if !ok {
		d.logger.Debug("rejecting request without userId",
			"request_id", req.ID(),
			"method", req.Method(),
			"path", req.Path(),
		)
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "Invalid JSON body")
	}

	target := req.Target()
	rateLimited := d.RateLimited(target)

	if rateLimited {
		decision, err := d.admitter.Admit(ctx, userID)
		if err != nil {
			return nil, errors.Newf(errors.ErrorTypeStoreUnavailable, "Error checking rate limit: %v", err).
				WithCause(err).
				WithDetail("user_id", userID)
		}
		if !decision.Allowed {
			return nil, errors.Newf(errors.ErrorTypeQuotaExceeded,
				"Daily limit of %d submissions exceeded. Try again later.", decision.Limit).
				WithDetail("user_id", userID)
		}
	}

	sanitized, err := StripUserID(body)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeInternal, "Internal server error: %v", err).WithCause(err)
	}

	return d.forwarder.Forward(ctx, backend.Outbound{
		Method:      req.Method(),
		Path:        target,
		RawQuery:    req.RawQuery(),
		Headers:     req.Headers(),
		Cookies:     req.Cookies(),
		Body:        sanitized,
		Synchronous: rateLimited && waitRequested(req.RawQuery()),
	})
}

func readBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer body.Close()
	return io.ReadAll(body)
}

// ExtractUserID returns the userId string of a JSON object body. When the
// member is repeated the last one wins. Missing, non-string and unset ("-")
// values are reported as absent, as are bodies that are not valid JSON.
func ExtractUserID(body []byte) (string, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return "", false
	}
	var v gjson.Result
	doc.ForEach(func(key, value gjson.Result) bool {
		if key.Str == UserIDField {
			v = value
		}
		return true
	})
	if v.Type != gjson.String || v.Str == "" || v.Str == unsetUserID {
		return "", false
	}
	return v.Str, true
}

// StripUserID removes every userId member from a JSON object, keeping all
// other members byte for byte in their original order. An empty body
// becomes "{}".
func StripUserID(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return []byte("{}"), nil
	}
	out := body
	for gjson.GetBytes(out, UserIDField).Exists() {
		next, err := sjson.DeleteBytes(out, UserIDField)
		if err != nil {
			return nil, err
		}
		if len(next) >= len(out) {
			return nil, stderrors.New("failed to remove userId from body")
		}
		out = next
	}
	return out, nil
}

// waitRequested mirrors the first "wait" query value being exactly "true"
func waitRequested(rawQuery string) bool {
	values, err := url.ParseQuery(rawQuery)
	if err != nil && len(values) == 0 {
		return false
	}
	return values.Get("wait") == "true"
}
