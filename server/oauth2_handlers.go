package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-core/auth"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/scopes"
	"github.com/jrsteele09/go-auth-core/users"
)

// maxJSONBody bounds the registration request body.
const maxJSONBody = 64 << 10

func (s *Server) scopesSupported() []string {
	supported := []string{s.config.GetDefaultScope(), auth.OfflineAccessScope}
	if len(s.config.GetIDTokenKey()) > 0 {
		supported = append(supported, auth.OpenIDScope)
	}
	return scopes.Dedupe(supported)
}

// AuthorizationServerMetadata serves the RFC 8414 discovery document.
func (s *Server) AuthorizationServerMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md := oauth2.NewAuthorizationServerMetadata(s.issuer(), oauth2.Endpoints{
			Authorize:    RouteOAuthAuthorize,
			Token:        RouteOAuthToken,
			Register:     RouteOAuthRegister,
			Introspect:   RouteOAuthIntrospect,
			Revoke:       RouteOAuthRevoke,
			Registration: s.auth.RegistrationPolicy().Enabled,
		}, s.scopesSupported())
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, md)
	}
}

// ProtectedResourceMetadata serves the RFC 9728 document of the resource
// this server's userinfo endpoint protects.
func (s *Server) ProtectedResourceMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md := oauth2.NewProtectedResourceMetadata(s.config.GetResourceURL(), s.issuer(), s.scopesSupported())
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, md)
	}
}

// Authorize issues a code straight away for a signed-in user. Anyone else is
// parked on a state and sent to the login page.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.renderErrorPage(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "malformed request"))
			return
		}
		params := oauthmodel.ParseAuthorizationParams(r.Form)

		if principal := s.ResolvePrincipal(r); principal != nil {
			redirect, err := s.auth.Authorize(r.Context(), params, principal)
			s.finishAuthorization(w, r, redirect, err)
			return
		}

		stateID, redirect, err := s.auth.BeginAuthorization(r.Context(), params)
		if err != nil {
			s.finishAuthorization(w, r, redirect, err)
			return
		}
		loginURL := url.Values{"state": {stateID}}
		if params.LoginHint != "" {
			loginURL.Set("login_hint", params.LoginHint)
		}
		http.Redirect(w, r, RouteOAuthLogin+"?"+loginURL.Encode(), http.StatusSeeOther)
	}
}

// finishAuthorization sends the authorization response to the client. An
// error without a trusted redirect URI is shown to the user instead.
func (s *Server) finishAuthorization(w http.ResponseWriter, r *http.Request, redirect *auth.Redirect, err error) {
	if redirect == nil {
		if err == nil {
			err = oauthmodel.NewError(oauthmodel.ServerError, "")
		}
		s.log.Debug().Err(err).Msg("authorization error rendered locally")
		s.renderErrorPage(w, err)
		return
	}
	s.callbackRedirect(w, r, redirect)
}

// callbackRedirect sends the authorization response to the client's redirect URI
// using the requested response mode (query, fragment, or form_post).
func (s *Server) callbackRedirect(w http.ResponseWriter, r *http.Request, redirect *auth.Redirect) {
	if redirect.ResponseMode == oauth2.FormPostResponseMode {
		w.Header().Set("Cache-Control", "no-store")
		s.renderTemplate(w, http.StatusOK, "form_post.html", struct {
			RedirectURI template.URL
			Values      url.Values
		}{
			// Already matched against the client's registered redirect URIs.
			RedirectURI: template.URL(redirect.URI),
			Values:      redirect.Values(),
		})
		return
	}
	http.Redirect(w, r, redirect.Location(), http.StatusSeeOther)
}

// Token exchanges code/credentials for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := oauthmodel.ParseTokenRequest(r)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		resp, err := s.auth.Token(r.Context(), req)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Introspect implements RFC 7662 for confidential clients.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		creds, err := oauthmodel.ParseClientCredentials(r)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		raw := r.PostForm.Get("token")
		if raw == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		info, err := s.auth.Introspect(r.Context(), creds, raw, oauth2.TokenTypeHint(r.PostForm.Get("token_type_hint")))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// Revoke implements RFC 7009. In preshared mode the secret is presented as
// a bearer credential.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		creds, err := oauthmodel.ParseClientCredentials(r)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		presented, _ := bearerToken(r)

		err = s.auth.Revoke(r.Context(), creds, presented, r.PostForm.Get("token"), oauth2.TokenTypeHint(r.PostForm.Get("token_type_hint")))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

// Register implements RFC 7591 dynamic client registration.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented, _ := bearerToken(r)
		if err := s.auth.AuthorizeRegistration(presented); err != nil {
			writeProtocolError(w, err)
			return
		}

		var md oauthmodel.ClientMetadata
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err := dec.Decode(&md); err != nil {
			writeJSONError(w, "invalid_client_metadata", "request body must be a JSON client metadata document", http.StatusBadRequest)
			return
		}

		client, err := s.auth.RegisterClient(r.Context(), md)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, auth.NewRegistrationResponse(client))
	}
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	ClientID      string `json:"client_id"`
	Scope         string `json:"scope,omitempty"`
	Aud           string `json:"aud,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

// UserInfo describes the bearer of the access token RequireBearer accepted.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, ok := AccessTokenFromContext(r.Context())
		if !ok {
			writeJSONError(w, "invalid_token", "", http.StatusUnauthorized)
			return
		}
		resp := userInfoResponse{
			Sub:      at.UserID,
			ClientID: at.ClientID,
			Scope:    scopes.Join(at.Scopes),
			Aud:      at.Resource,
		}
		if resp.Sub == "" {
			resp.Sub = at.ClientID
		}
		if u, err := s.users.Get(r.Context(), resp.Sub); err == nil {
			resp.Email = u.Email
			resp.EmailVerified = u.Verified
			resp.Name = u.Name
		} else if !errs.Is(err, users.ErrNotFound) {
			s.log.Error().Err(err).Msg("userinfo lookup failed")
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
