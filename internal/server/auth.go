package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Principal identifies the authenticated tenant on a request.
type Principal struct {
	TenantUUID string
	Source     string // "jwt" or "api_key"
}

type principalKey struct{}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// MintToken issues a bearer token for a tenant, signed with the server secret.
func MintToken(secret, tenantUUID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantUUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "reqline",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *Server) newAuthMiddleware(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if isPublic(ctx.Operation()) {
			next(ctx)
			return
		}

		principal, err := s.authenticate(ctx)
		if err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		next(huma.WithValue(ctx, principalKey{}, principal))
	}
}

func isPublic(op *huma.Operation) bool {
	if op == nil {
		return true
	}
	public, _ := op.Metadata["public"].(bool)
	return public
}

func (s *Server) authenticate(ctx huma.Context) (Principal, error) {
	if key := ctx.Header("X-Api-Key"); key != "" {
		tenantUUID, err := s.Repo.TenantForAPIKey(ctx.Context(), key)
		if err != nil {
			return Principal{}, errUnknownAPIKey
		}
		return Principal{TenantUUID: tenantUUID, Source: "api_key"}, nil
	}

	authz := ctx.Header("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return s.verifyToken(strings.TrimPrefix(authz, "Bearer "))
	}
	return Principal{}, errNoCredentials
}

func (s *Server) verifyToken(raw string) (Principal, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadSigningMethod
		}
		return []byte(s.Config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return Principal{}, errBadToken
	}
	if claims.Subject == "" {
		return Principal{}, errBadToken
	}
	return Principal{TenantUUID: claims.Subject, Source: "jwt"}, nil
}

var (
	errNoCredentials    = authError("missing credentials")
	errUnknownAPIKey    = authError("unknown api key")
	errBadToken         = authError("invalid token")
	errBadSigningMethod = authError("unexpected signing method")
)

type authError string

func (e authError) Error() string { return string(e) }
