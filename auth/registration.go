package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/scopes"
	"github.com/pkg/errors"
)

const clientSecretLength = 32

// RegistrationMode controls who may call the registration endpoint.
type RegistrationMode string

const (
	// RegistrationOpen lets anyone register a client.
	RegistrationOpen RegistrationMode = "open"
	// RegistrationPreshared requires the configured initial access token as a
	// bearer credential.
	RegistrationPreshared RegistrationMode = "preshared"
)

// RegistrationPolicy configures dynamic client registration. The zero value
// disables it.
type RegistrationPolicy struct {
	Enabled bool
	Mode    RegistrationMode
	Secret  string
}

func (p RegistrationPolicy) validate() error {
	if !p.Enabled {
		return nil
	}
	switch p.Mode {
	case RegistrationOpen, "":
		return nil
	case RegistrationPreshared:
		if p.Secret == "" {
			return errs.Config("preshared registration requires a secret")
		}
		return nil
	default:
		return errs.Config("unknown registration mode %q", p.Mode)
	}
}

// AuthorizeRegistration checks the bearer credential presented to the
// registration endpoint.
func (as *AuthorizationService) AuthorizeRegistration(presented string) error {
	p := as.registrationPolicy
	if !p.Enabled {
		return protocolError(oauthmodel.AccessDenied, RegistrationDisabledErr)
	}
	if p.Mode != RegistrationPreshared {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(p.Secret)) != 1 {
		as.log.Info().Str("reason", "bad initial access token").Msg("registration rejected")
		return oauthmodel.NewError(oauthmodel.InvalidClient, "invalid registration credentials")
	}
	return nil
}

// RegisterClient validates RFC 7591 metadata and stores the new client. The
// returned client holds the generated secret, which is only disclosed here.
func (as *AuthorizationService) RegisterClient(ctx context.Context, md oauthmodel.ClientMetadata) (*clients.Client, error) {
	if len(md.RedirectURIs) == 0 {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidRedirectURI, clients.ErrNoRedirectURIs.Error(), clients.ErrNoRedirectURIs)
	}
	for _, uri := range md.RedirectURIs {
		if err := clients.ValidateRedirectURI(uri); err != nil {
			return nil, oauthmodel.WrapError(oauthmodel.InvalidRedirectURI, err.Error(), err)
		}
	}

	method := clients.AuthMethod(md.TokenEndpointAuthMethod)
	switch method {
	case "":
		method = clients.AuthMethodSecretPost
	case clients.AuthMethodSecretPost, clients.AuthMethodSecretBasic, clients.AuthMethodNone:
	default:
		return nil, oauthmodel.WrapError(oauthmodel.InvalidClientMetadata, clients.ErrInvalidAuthMethod.Error(), clients.ErrInvalidAuthMethod)
	}

	grantTypes := scopes.Dedupe(md.GrantTypes)
	if len(grantTypes) == 0 {
		grantTypes = []string{clients.GrantAuthorizationCode, clients.GrantRefreshToken}
	}
	for _, g := range grantTypes {
		switch g {
		case clients.GrantAuthorizationCode, clients.GrantRefreshToken:
		case clients.GrantClientCredentials:
			if method == clients.AuthMethodNone {
				return nil, oauthmodel.NewError(oauthmodel.InvalidClientMetadata, "client_credentials requires a confidential client")
			}
		default:
			return nil, oauthmodel.WrapError(oauthmodel.InvalidClientMetadata, clients.ErrInvalidGrantType.Error(), clients.ErrInvalidGrantType)
		}
	}
	for _, rt := range md.ResponseTypes {
		if rt != "code" {
			return nil, oauthmodel.NewError(oauthmodel.InvalidClientMetadata, "only the code response type is supported")
		}
	}

	requested := scopes.Parse(md.Scope)
	if len(requested) == 0 && as.defaultScope != "" {
		requested = []string{as.defaultScope}
	}

	client := &clients.Client{
		ID:                      uuid.NewString(),
		Type:                    clients.ClientTypeConfidential,
		Name:                    strings.TrimSpace(md.ClientName),
		RedirectURIs:            md.RedirectURIs,
		GrantTypes:              grantTypes,
		Scopes:                  requested,
		TokenEndpointAuthMethod: method,
		CreatedAt:               as.nowTime().UTC(),
	}
	if method == clients.AuthMethodNone {
		client.Type = clients.ClientTypePublic
	} else {
		secret, err := random.Token(clientSecretLength)
		if err != nil {
			return nil, oauthmodel.FromError(errors.Wrap(err, "[AuthorizationService.RegisterClient] generate secret"))
		}
		client.Secret = secret
	}

	if err := as.store.PutClient(ctx, client); err != nil {
		as.log.Error().Err(err).Msg("register: persist client failed")
		return nil, oauthmodel.FromError(errors.Wrap(err, "[AuthorizationService.RegisterClient] put"))
	}
	as.log.Info().Str("client_id", client.ID).Str("auth_method", string(method)).Msg("client registered")
	return client, nil
}

// NewRegistrationResponse renders a freshly registered client.
func NewRegistrationResponse(c *clients.Client) *oauthmodel.RegistrationResponse {
	resp := &oauthmodel.RegistrationResponse{
		ClientID:                c.ID,
		ClientIDIssuedAt:        c.CreatedAt.Unix(),
		RedirectURIs:            c.RedirectURIs,
		TokenEndpointAuthMethod: string(c.TokenEndpointAuthMethod),
		GrantTypes:              c.GrantTypes,
		ResponseTypes:           []string{"code"},
		ClientName:              c.Name,
		Scope:                   scopes.Join(c.Scopes),
	}
	if !c.IsPublic() {
		resp.ClientSecret = c.Secret
		resp.ClientSecretExpiresAt = oauthmodel.NeverExpires()
	}
	return resp
}
