package api

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/contextkeys"
	"github.com/platinummonkey/publishgate/pkg/github"
	"github.com/platinummonkey/publishgate/pkg/httputil"
	"github.com/platinummonkey/publishgate/pkg/middleware"
	"github.com/platinummonkey/publishgate/pkg/observability"
	"github.com/platinummonkey/publishgate/pkg/publish"
	"github.com/platinummonkey/publishgate/pkg/registry"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

const defaultRegistryHref = "http://127.0.0.1:8080"

// Config holds the settings the HTTP layer needs.
type Config struct {
	// PublicURL is the registry address users put in their .npmrc.
	PublicURL string
	// LoginURL is the login website, possibly served by another instance.
	LoginURL     string
	LoginEnabled bool
	// NPMToken is the service account credential used for require-2FA calls.
	NPMToken     string
	MaxBodyBytes int64
	// TwoFactorTimeout bounds the background require-2FA call after a first publish.
	TwoFactorTimeout time.Duration
	Now              func() time.Time
}

// Dependencies are the collaborators a Server is wired with. OAuth and
// Sessions are required only when login is enabled.
type Dependencies struct {
	Store    storage.Store
	Engine   *publish.Engine
	Registry *registry.Client
	GitHub   *github.Client
	OAuth    *github.WebFlow
	Sessions *auth.SessionManager
	OTP      registry.CodeSource
	Limiter  *middleware.RateLimiter
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
	// Audit receives login, token and publish events. Defaults to a no-op.
	Audit audit.Logger
}

// Server represents our API server
type Server struct {
	config   Config
	router   *mux.Router
	handler  http.Handler
	store    storage.Store
	engine   *publish.Engine
	registry *registry.Client
	github   *github.Client
	oauth    *github.WebFlow
	sessions *auth.SessionManager
	otp      registry.CodeSource
	limiter  *middleware.RateLimiter
	metrics  *observability.Metrics
	logger   logrus.FieldLogger
	audit    audit.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil || deps.Engine == nil || deps.Registry == nil || deps.OTP == nil {
		return nil, errors.New("api: store, engine, registry and otp are required")
	}
	if cfg.LoginEnabled && (deps.OAuth == nil || deps.Sessions == nil || deps.GitHub == nil) {
		return nil, errors.New("api: login requires oauth, sessions and a github client")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TwoFactorTimeout <= 0 {
		cfg.TwoFactorTimeout = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}

	s := &Server{
		config:   cfg,
		router:   mux.NewRouter().UseEncodedPath(),
		store:    deps.Store,
		engine:   deps.Engine,
		registry: deps.Registry,
		github:   deps.GitHub,
		oauth:    deps.OAuth,
		sessions: deps.Sessions,
		otp:      deps.OTP,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		audit:    deps.Audit,
	}
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.setupRoutes()

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	if cfg.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(cfg.MaxBodyBytes))
	}
	chain = append(chain, rewritePath)
	s.handler = observability.TracedHandler(httputil.Chain(chain...)(s.router), "publishgate")
	return s, nil
}

// setupRoutes configures all the API routes. mux matches on the escaped
// path, so a scoped name such as @scope%2fname is a single segment.
func (s *Server) setupRoutes() {
	limited := func(h http.HandlerFunc) http.Handler { return s.limiter.Handler(h) }

	// npm CLI login handoff
	s.router.Handle("/-/v1/login", limited(s.startLogin)).Methods(http.MethodPost)
	s.router.Handle("/_/done", limited(s.loginDone)).Methods(http.MethodGet)
	s.router.HandleFunc("/-/whoami", s.whoami).Methods(http.MethodGet)

	// registry reads and package settings
	s.router.HandleFunc("/-/package/{package}/dist-tags", s.proxyDistTags).Methods(http.MethodGet)
	s.router.HandleFunc("/-/package/{package}/dist-tags/{tag}", s.authorizeWrite).Methods(http.MethodPut, http.MethodDelete)
	s.router.HandleFunc("/-/package/{package}/access", s.access).Methods(http.MethodPost)
	s.router.HandleFunc("/_/2fa", s.requireTwoFactorHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/_/metadata/{package}", s.proxyWriteMetadata).Methods(http.MethodGet)

	// login website
	s.router.HandleFunc("/_/account", s.web(s.account)).Methods(http.MethodGet)
	s.router.HandleFunc("/_/login-link", s.web(s.loginLink)).Methods(http.MethodGet)
	s.router.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	s.router.Handle("/oauth/github", limited(s.oauthCallback)).Methods(http.MethodGet)
	s.router.Handle("/_/token", limited(s.web(s.createToken))).Methods(http.MethodPut)
	s.router.HandleFunc("/_/api/v1/tokens", s.web(s.listTokens)).Methods(http.MethodGet)
	s.router.Handle("/_/api/v1/token", limited(s.web(s.deleteToken))).Methods(http.MethodDelete)

	// writes that go through the publish engine
	s.router.HandleFunc("/{package}/-rev/{rev}", s.authorizeWrite).Methods(http.MethodPut, http.MethodDelete)
	s.router.HandleFunc("/{package}/-/{tarball}/-rev/{sha}", s.authorizeWrite).Methods(http.MethodDelete)
	s.router.HandleFunc("/{package}", s.authorizeWrite).Methods(http.MethodPut)
	s.router.HandleFunc("/{package}", s.proxyMetadata).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

var namespacePattern = regexp.MustCompile(`^(.+)(/_ns/|/_ns$)`)

// rewritePath strips an npmrc namespace prefix (/<ns>/_ns/...) into the
// request context and sends ?write=true reads to the metadata route.
func rewritePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		ctx := r.Context()
		rewritten := false

		if m := namespacePattern.FindStringSubmatch(path); m != nil {
			ns, err := url.PathUnescape(m[1][1:])
			if err != nil {
				ns = m[1][1:]
			}
			ctx = contextkeys.WithNamespace(ctx, ns)
			path = "/" + path[len(m[0]):]
			rewritten = true
		}
		if r.URL.Query().Get("write") == "true" {
			path = "/_/metadata" + path
			rewritten = true
		}
		if !rewritten {
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(ctx)
		u := *r.URL
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid path")
			return
		}
		u.Path, u.RawPath = unescaped, path
		r.URL = &u
		next.ServeHTTP(w, r)
	})
}

// serverError logs err under a fresh support id and answers 500 with it.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	id := httputil.NewSupportID()
	observability.FromContext(r.Context(), s.logger).
		WithError(err).
		WithField("support_id", id).
		Error(msg)
	httputil.WriteText(w, http.StatusInternalServerError, "server error ping support with id: "+id)
}
