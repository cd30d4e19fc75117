package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"kanban-sync/internal/consts"
)

// clockSkew is tolerated on exp and nbf.
const clockSkew = time.Minute

var (
	errNoCredential = errors.New("missing credential")
	errMalformed    = errors.New("malformed bearer token")
	errNoSubject    = errors.New("token has no subject")
	errExpired      = errors.New("token expired")
	errNotYetValid  = errors.New("token not valid yet")
	errAudience     = errors.New("invalid audience")
	errIssuer       = errors.New("invalid issuer")
)

// Identity is the user a peer connection acts for.
type Identity struct {
	UserID  string
	Expires time.Time
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// TokenVerifier accepts RS256 tokens signed by a JWKS key, or HS256 tokens
// signed with a shared secret in test mode.
type TokenVerifier struct {
	keys       jwt.Keyfunc
	methods    []string
	audience   string
	issuer     string
	requireExp bool
	now        func() time.Time
}

// NewAuth verifies RS256 tokens from jwks. Empty audience or issuer are not
// checked.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *TokenVerifier {
	v := &TokenVerifier{
		methods:    []string{"RS256"},
		audience:   audience,
		issuer:     issuer,
		requireExp: true,
		now:        time.Now,
	}
	v.keys = func(t *jwt.Token) (interface{}, error) {
		if jwks == nil {
			return nil, errors.New("jwks not configured")
		}
		return jwks.Keyfunc(t)
	}
	return v
}

// NewTestAuth verifies HS256 tokens signed with secret.
func NewTestAuth(secret []byte) *TokenVerifier {
	return &TokenVerifier{
		keys:    func(*jwt.Token) (interface{}, error) { return secret, nil },
		methods: []string{"HS256"},
		now:     time.Now,
	}
}

func (v *TokenVerifier) Verify(token string) (Identity, error) {
	if strings.Count(token, ".") != 2 {
		return Identity{}, errMalformed
	}
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods(v.methods), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, claims, v.keys); err != nil {
		return Identity{}, err
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew), v.requireExp) {
		return Identity{}, errExpired
	}
	if !claims.VerifyNotBefore(now.Add(clockSkew), false) {
		return Identity{}, errNotYetValid
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return Identity{}, errAudience
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Identity{}, errIssuer
	}
	if claims.Subject == "" {
		return Identity{}, errNoSubject
	}

	id := Identity{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		id.Expires = claims.ExpiresAt.Time
	}
	return id, nil
}

// bearer reads the credential of an upgrade request: the Authorization
// header, or the token query parameter for clients that cannot set headers.
func bearer(r *http.Request) (string, error) {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return "", errMalformed
		}
		return token, nil
	}
	if token := r.URL.Query().Get(consts.TokenQueryParam); token != "" {
		return token, nil
	}
	return "", errNoCredential
}
