package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"
)

const RoleAdmin = "admin"

var (
	ErrUnauthorized = zerr.New("login required")
	ErrForbidden    = zerr.New("role required")
)

// Claims are carried by the bearer tokens the api accepts. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

type claimsKey struct{}

// ClaimsFrom returns the claims of the authenticated caller, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Authenticator signs and checks HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	clock  clockwork.Clock
}

func NewAuthenticator(secret string, clock clockwork.Clock) *Authenticator {
	return &Authenticator{secret: []byte(secret), clock: clock}
}

// Issue signs a token for subject valid for ttl.
func (a *Authenticator) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", zerr.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to parse token")
	}
	if claims.Subject == "" {
		return nil, zerr.New("token has no subject")
	}
	return &claims, nil
}

// Identify attaches the claims of a valid bearer token to the request context. Requests
// without a valid token pass through anonymously.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		header := request.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			next.ServeHTTP(writer, request)
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			writeReply(writer, http.StatusUnauthorized, failure(err.Error()))
			return
		}
		next.ServeHTTP(writer, request.WithContext(context.WithValue(request.Context(), claimsKey{}, claims)))
	})
}

func RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if _, ok := ClaimsFrom(request.Context()); !ok {
			writeReply(writer, http.StatusUnauthorized, failure(ErrUnauthorized.Error()))
			return
		}
		next(writer, request)
	}
}

func RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		claims, ok := ClaimsFrom(request.Context())
		if !ok {
			writeReply(writer, http.StatusUnauthorized, failure(ErrUnauthorized.Error()))
			return
		}
		if !claims.HasRole(role) {
			writeReply(writer, http.StatusForbidden, failure(ErrForbidden.Error()))
			return
		}
		next(writer, request)
	}
}
