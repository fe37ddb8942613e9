package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/jrsteele09/go-auth-core/ratelimit"
	"github.com/jrsteele09/go-auth-core/server/loginsession"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/users"
	"github.com/jrsteele09/go-auth-core/verification"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TokenVerifier answers whether a bearer token presented to a protected
// endpoint is live. token.Manager answers locally and remote.Verifier asks
// another authorization server.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw, expectedResource string, strict bool) (*store.AccessToken, error)
}

// Dependencies are the components the HTTP surface is a thin layer over.
// Providers, Notifier and Metrics are optional.
type Dependencies struct {
	Auth          *auth.AuthorizationService
	Tokens        TokenVerifier
	Verification  *verification.Engine
	Limiter       ratelimit.Limiter
	Users         *users.Directory
	Providers     *providers.Registry
	LoginSessions loginsession.Repo
	Notifier      Notifier
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

type Server struct {
	env       string // DEV logs every route and request
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	templates *template.Template
	throttle  *ipThrottle

	auth          *auth.AuthorizationService
	tokens        TokenVerifier
	verification  *verification.Engine
	limiter       ratelimit.Limiter
	users         *users.Directory
	providers     *providers.Registry
	loginSessions loginsession.Repo
	notifier      Notifier
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func New(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil || deps.Tokens == nil || deps.Verification == nil || deps.Users == nil || deps.LoginSessions == nil {
		return nil, errors.New("[server.New] auth, tokens, verification, users and login sessions are required")
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewMemory()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(deps.Logger)
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] templates")
	}

	rps, burst := cfg.GetTokenEndpointRate()
	s := &Server{
		env:           cfg.GetEnv(),
		mux:           http.NewServeMux(),
		config:        cfg,
		templates:     templates,
		throttle:      newIPThrottle(rps, burst),
		auth:          deps.Auth,
		tokens:        deps.Tokens,
		verification:  deps.Verification,
		limiter:       deps.Limiter,
		users:         deps.Users,
		providers:     deps.Providers,
		loginSessions: deps.LoginSessions,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		log:           deps.Logger,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = gray
	}
	s.log.Info().Msgf("[%-19s] %s", color+paddedMethod+resetColor, path)
}

// issuer is the configured issuer URL without a trailing slash.
func (s *Server) issuer() string {
	return s.config.GetIssuerURL()
}

// secureCookies is true when the server is reached over https.
func (s *Server) secureCookies(r *http.Request) bool {
	return r.TLS != nil || strings.HasPrefix(s.issuer(), "https://") || r.Header.Get("X-Forwarded-Proto") == "https"
}
