package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Discovery
	RouteWellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"
	RouteWellKnownProtectedResource   = "/.well-known/oauth-protected-resource"

	// OAuth 2.1 endpoints
	RouteOAuthAuthorize  = "/oauth/authorize"
	RouteOAuthLogin      = "/oauth/login"
	RouteOAuthToken      = "/oauth/token"
	RouteOAuthIntrospect = "/oauth/introspect"
	RouteOAuthRevoke     = "/oauth/revoke"
	RouteOAuthRegister   = "/oauth/register"
	RouteOAuthUserInfo   = "/oauth/userinfo"
	RouteLogout          = "/logout"

	// Email sign-in
	RouteEmailOTP             = "/email/otp"
	RouteEmailOTPVerify       = "/email/otp/verify"
	RouteEmailMagicLink       = "/email/magic-link"
	RouteEmailMagicLinkVerify = "/email/magic-link/verify"

	// Password accounts
	RouteAccountSignup           = "/account/signup"
	RouteAccountVerifyEmail      = "/account/verify-email"
	RouteAccountForgotPassword   = "/account/forgot-password"
	RouteAccountResetPassword    = "/account/reset-password"
	RouteAccountValidatePassword = "/account/validate-password"

	// Upstream provider sign-in ({name} is the provider name)
	RouteProviderLogin    = "/providers/{name}/login"
	RouteProviderCallback = "/providers/{name}/callback"

	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)
