// Package idtoken signs OpenID Connect ID tokens with HMAC-SHA256.
package idtoken

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultTTL = time.Hour

// MinKeyLength is the shortest accepted HS256 key, in bytes.
const MinKeyLength = 32

var ErrShortKey = errors.New("id token signing key must be at least 32 bytes")

// Issuer creates ID tokens for one issuer URL.
type Issuer struct {
	issuer  string
	key     []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// New returns an Issuer signing with key.
func New(issuer string, key []byte, opts ...Option) (*Issuer, error) {
	if len(key) < MinKeyLength {
		return nil, ErrShortKey
	}
	i := &Issuer{
		issuer:  issuer,
		key:     append([]byte(nil), key...),
		ttl:     DefaultTTL,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Subject is the authenticated principal an ID token is issued for.
type Subject struct {
	UserID    string
	SessionID string
	ClientID  string
	Nonce     string
}

// Claims are the claims carried by an ID token.
type Claims struct {
	Nonce     string `json:"nonce,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwtlib.RegisteredClaims
}

// Issue signs an ID token for s.
func (i *Issuer) Issue(s Subject) (string, error) {
	if s.UserID == "" || s.ClientID == "" {
		return "", errors.New("[Issuer.Issue] user and client are required")
	}
	now := i.nowFunc()
	claims := Claims{
		Nonce:     s.Nonce,
		SessionID: s.SessionID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   s.UserID,
			Audience:  jwtlib.ClaimStrings{s.ClientID},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] sign")
	}
	return signed, nil
}

// Parse verifies a token issued by i for clientID and returns its claims.
func (i *Issuer) Parse(raw, clientID string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		return i.key, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(i.issuer),
		jwtlib.WithAudience(clientID),
		jwtlib.WithTimeFunc(i.nowFunc),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Parse]")
	}
	return claims, nil
}
