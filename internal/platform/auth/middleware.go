package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// DevUserID is the identity assigned to unauthenticated requests in development.
const DevUserID = "00000000-0000-0000-0000-00000000d0d0"

// Claims are the JWT claims the clinic API understands. Subject must be the
// user's UUID.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTConfig mirrors the AUTH_* settings. Exactly one key source is used:
// SigningKey (HS256) when set, the JWKS endpoint (RS256) otherwise.
type JWTConfig struct {
	Issuer     string
	Audience   string
	JWKSURL    string
	SigningKey []byte
}

// keySource resolves the verification key for a token. ctx is the request
// context so a JWKS refresh is cancelled with the request.
type keySource func(ctx context.Context, t *jwt.Token) (interface{}, error)

func newKeySource(cfg JWTConfig) (keySource, string, error) {
	if len(cfg.SigningKey) > 0 {
		return func(context.Context, *jwt.Token) (interface{}, error) {
			return cfg.SigningKey, nil
		}, jwt.SigningMethodHS256.Alg(), nil
	}
	if cfg.JWKSURL != "" {
		keys := NewJWKSCache(cfg.JWKSURL, defaultJWKSTTL)
		return func(ctx context.Context, t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("token has no kid header")
			}
			return keys.Key(ctx, kid)
		}, jwt.SigningMethodRS256.Alg(), nil
	}
	return nil, "", errors.New("no signing key or JWKS URL configured")
}

// JWTMiddleware validates bearer tokens and stores the subject and roles on
// the request context. It does not authorize; ActorFromContext and the
// services do that.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	source, method, err := newKeySource(cfg)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "token verification is not configured")
			}
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
			}

			ctx := c.Request().Context()
			claims := &Claims{}
			_, perr := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return source(ctx, t)
			}, opts...)
			if perr != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if _, perr := uuid.Parse(claims.Subject); perr != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a user id")
			}

			c.SetRequest(c.Request().WithContext(WithUser(ctx, claims.Subject, claims.Roles)))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// DevAuthMiddleware lets unauthenticated requests through as a supervisor.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				ctx := WithUser(c.Request().Context(), DevUserID, []string{RoleSupervisor})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// WithUser stores identity on ctx.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
