package oauth2

import "strings"

// AuthorizationServerMetadata is the RFC 8414 discovery document.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 document a resource server publishes.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// Endpoints holds the paths the server mounts its OAuth endpoints on.
type Endpoints struct {
	Authorize    string
	Token        string
	Register     string
	Introspect   string
	Revoke       string
	Registration bool
}

// NewAuthorizationServerMetadata builds the discovery document from the
// issuer URL and the server's mounted paths.
func NewAuthorizationServerMetadata(issuer string, endpoints Endpoints, scopesSupported []string) *AuthorizationServerMetadata {
	base := strings.TrimRight(issuer, "/")
	md := &AuthorizationServerMetadata{
		Issuer:                        base,
		AuthorizationEndpoint:         base + endpoints.Authorize,
		TokenEndpoint:                 base + endpoints.Token,
		IntrospectionEndpoint:         base + endpoints.Introspect,
		RevocationEndpoint:            base + endpoints.Revoke,
		ScopesSupported:               scopesSupported,
		ResponseTypesSupported:        []string{string(CodeResponseType)},
		ResponseModesSupported:        []string{string(QueryResponseMode), string(FragmentResponseMode), string(FormPostResponseMode)},
		CodeChallengeMethodsSupported: []string{"S256"},
		GrantTypesSupported: []string{
			string(AuthorizationCodeGrant),
			string(RefreshTokenCodeGrant),
			string(ClientCredentialsCodeGrant),
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic", // Credentials in Authorization header
			"client_secret_post",  // Credentials in POST body
			"none",                // For public clients with PKCE
		},
	}
	if endpoints.Registration {
		md.RegistrationEndpoint = base + endpoints.Register
	}
	return md
}

// NewProtectedResourceMetadata builds the RFC 9728 document for resource.
func NewProtectedResourceMetadata(resource, issuer string, scopesSupported []string) *ProtectedResourceMetadata {
	return &ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{strings.TrimRight(issuer, "/")},
		ScopesSupported:        scopesSupported,
		BearerMethodsSupported: []string{"header"},
	}
}
