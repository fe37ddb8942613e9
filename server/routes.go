package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// Discovery
	s.registerAPIRoute("GET", RouteWellKnownAuthorizationServer, s.AuthorizationServerMetadata())
	s.registerAPIRoute("GET", RouteWellKnownProtectedResource, s.ProtectedResourceMetadata())

	// Authorization endpoint and the login page it sends browsers to
	s.RegisterRouteHandler("GET "+RouteOAuthAuthorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthAuthorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleware()...))

	// Token endpoint: per-IP throttled, never cached
	s.registerAPIRoute("POST", RouteOAuthToken, s.Token(), s.NoStoreMiddleware, s.ThrottleMiddleware)
	s.registerAPIRoute("POST", RouteOAuthIntrospect, s.Introspect(), s.NoStoreMiddleware)
	s.registerAPIRoute("POST", RouteOAuthRevoke, s.Revoke())
	s.registerAPIRoute("POST", RouteOAuthRegister, s.Register(), s.NoStoreMiddleware)
	s.registerAPIRoute("GET", RouteOAuthUserInfo, s.UserInfo(), s.NoStoreMiddleware, s.RequireBearer())

	// Email sign-in
	s.registerAPIRoute("POST", RouteEmailOTP, s.SendOTPHandler())
	s.registerAPIRoute("POST", RouteEmailOTPVerify, s.VerifyOTPHandler())
	s.registerAPIRoute("POST", RouteEmailMagicLink, s.SendMagicLinkHandler())
	s.RegisterRouteHandler("GET "+RouteEmailMagicLinkVerify, ChainMiddleware(s.VerifyMagicLinkHandler(), s.HTMLMiddleware()...))

	// Password accounts
	s.registerAPIRoute("POST", RouteAccountSignup, s.SignupHandler())
	s.RegisterRouteHandler("GET "+RouteAccountVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.HTMLMiddleware()...))
	s.registerAPIRoute("POST", RouteAccountForgotPassword, s.ForgotPasswordHandler())
	s.RegisterRouteHandler("GET "+RouteAccountResetPassword, ChainMiddleware(s.ResetPasswordPageHandler(), s.HTMLMiddleware()...))
	s.registerAPIRoute("POST", RouteAccountResetPassword, s.ResetPasswordHandler())
	s.registerAPIRoute("POST", RouteAccountValidatePassword, s.ValidatePasswordHandler())

	// Upstream providers
	if s.providers != nil {
		s.RegisterRouteHandler("GET "+RouteProviderLogin, ChainMiddleware(s.ProviderLoginHandler(), s.HTMLMiddleware()...))
		s.RegisterRouteHandler("GET "+RouteProviderCallback, ChainMiddleware(s.ProviderCallbackHandler(), s.HTMLMiddleware()...))
	}

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	}
	s.RegisterRouteFunc("GET "+RouteHealthz, s.Healthz())
}

// registerAPIRoute mounts a JSON endpoint behind the API middleware and
// answers its CORS preflight.
func (s *Server) registerAPIRoute(method, path string, h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
	s.RegisterRouteHandler(method+" "+path, ChainMiddleware(h, s.APIMiddleware(mw...)...))
	s.RegisterRouteHandler("OPTIONS "+path, ChainMiddleware(preflightOnly, s.APIMiddleware()...))
}

// preflightOnly is reached for OPTIONS requests CorsMiddleware did not
// answer, which only happens when an Origin header is missing.
func preflightOnly(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
