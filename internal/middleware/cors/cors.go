// Package cors answers browser cross-origin checks for every gateway route.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"judge0gw/internal/config"
)

// Config holds CORS configuration
type Config struct {
	// AllowedOrigins is a list of allowed origins. Use ["*"] to allow all origins.
	AllowedOrigins []string
	// AllowedMethods is a list of allowed HTTP methods
	AllowedMethods []string
	// AllowedHeaders is a list of allowed headers. Use ["*"] to allow any requested header.
	AllowedHeaders []string
	// ExposedHeaders is a list of headers that browsers are allowed to access
	ExposedHeaders []string
	// AllowCredentials indicates whether the request can include user credentials
	AllowCredentials bool
	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached
	MaxAge int
	// OptionsSuccessStatus is the status code for answered preflight requests
	OptionsSuccessStatus int
}

// DefaultConfig allows every origin, echoing it back with Vary: Origin
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusOK,
	}
}

// FromConfig converts the gateway CORS settings
func FromConfig(cfg config.CORS) Config {
	c := DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		c.AllowedMethods = cfg.AllowedMethods
	}
	if len(cfg.AllowedHeaders) > 0 {
		c.AllowedHeaders = cfg.AllowedHeaders
	}
	c.ExposedHeaders = cfg.ExposedHeaders
	c.AllowCredentials = cfg.AllowCredentials
	c.MaxAge = cfg.MaxAge
	return c
}

// CORS provides Cross-Origin Resource Sharing middleware
type CORS struct {
	config         Config
	anyOrigin      bool
	anyHeader      bool
	allowedOrigins map[string]bool
	allowedHeaders map[string]bool
	methods        string
}

// New creates a new CORS middleware handler
func New(config Config) *CORS {
	defaults := DefaultConfig()
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = defaults.AllowedMethods
	}
	if config.OptionsSuccessStatus == 0 {
		config.OptionsSuccessStatus = defaults.OptionsSuccessStatus
	}

	c := &CORS{
		config:         config,
		allowedOrigins: make(map[string]bool, len(config.AllowedOrigins)),
		allowedHeaders: make(map[string]bool, len(config.AllowedHeaders)),
		methods:        strings.Join(config.AllowedMethods, ", "),
	}
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			c.anyOrigin = true
		}
		c.allowedOrigins[strings.ToLower(origin)] = true
	}
	for _, header := range config.AllowedHeaders {
		if header == "*" {
			c.anyHeader = true
		}
		c.allowedHeaders[strings.ToLower(header)] = true
	}
	return c
}

// Handler returns an HTTP handler that applies CORS headers and answers preflights
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := c.setOrigin(w.Header(), origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				c.setPreflight(w.Header(), r)
			}
			w.WriteHeader(c.config.OptionsSuccessStatus)
			return
		}

		if allowed && len(c.config.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(c.config.ExposedHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}

// setOrigin writes the allow-origin headers and reports whether origin is allowed
func (c *CORS) setOrigin(h http.Header, origin string) bool {
	h.Add("Vary", "Origin")
	if origin == "" || !c.isOriginAllowed(origin) {
		return false
	}
	h.Set("Access-Control-Allow-Origin", origin)
	if c.config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	return true
}

func (c *CORS) setPreflight(h http.Header, r *http.Request) {
	if c.isMethodAllowed(r.Header.Get("Access-Control-Request-Method")) {
		h.Set("Access-Control-Allow-Methods", c.methods)
	}
	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" && c.areHeadersAllowed(reqHeaders) {
		h.Set("Access-Control-Allow-Headers", reqHeaders)
	}
	if c.config.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
	}
}

func (c *CORS) isOriginAllowed(origin string) bool {
	return c.anyOrigin || c.allowedOrigins[strings.ToLower(origin)]
}

func (c *CORS) isMethodAllowed(method string) bool {
	for _, allowed := range c.config.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

func (c *CORS) areHeadersAllowed(headers string) bool {
	if c.anyHeader {
		return true
	}
	for _, header := range strings.Split(headers, ",") {
		if !c.allowedHeaders[strings.TrimSpace(strings.ToLower(header))] {
			return false
		}
	}
	return true
}
