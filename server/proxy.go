package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/panyam/authbridge"
)

// ErrNoSiteURL is returned when the provider site URL is not configured
var ErrNoSiteURL = errors.New("PUBLIC_CONVEX_SITE_URL environment variable is not set")

// DefaultProxyPrefix is the path prefix forwarded to the provider
const DefaultProxyPrefix = "/api/auth"

// ProxyOptions configures NewProxyHandler.
type ProxyOptions struct {
	// SiteURL is where the provider runs. Defaults to PUBLIC_CONVEX_SITE_URL.
	SiteURL string

	// Prefix defaults to "/api/auth".
	Prefix string

	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewProxyHandler forwards GET and POST requests under the prefix to the
// provider, keeping path and query. The Host header becomes the provider's
// and redirects are passed back to the browser, not followed.
func NewProxyHandler(opts ProxyOptions) (http.Handler, error) {
	if opts.SiteURL == "" {
		cfg, err := authbridge.LoadConfig()
		if err != nil {
			return nil, err
		}
		opts.SiteURL = cfg.ConvexSiteURL
	}
	if opts.SiteURL == "" {
		return nil, ErrNoSiteURL
	}
	target, err := url.Parse(opts.SiteURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid provider site URL %q", opts.SiteURL)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultProxyPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header.Set("Accept-Encoding", "application/json")
		},
		Transport: opts.Transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("auth proxy request failed", "path", r.URL.Path, "error", err)
			http.Error(w, "auth provider unavailable", http.StatusBadGateway)
		},
	}

	r := mux.NewRouter()
	r.PathPrefix(opts.Prefix).Methods(http.MethodGet, http.MethodPost).Handler(proxy)
	return r, nil
}
