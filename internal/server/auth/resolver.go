package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/allenzhangsg/rbac/internal/logging"
	"github.com/allenzhangsg/rbac/internal/server/store"
)

// accessTokenCookie is the cookie carrying the bearer token.
const accessTokenCookie = "access_token"

// Session resolution errors. All of them map to HTTP 401 at the boundary;
// the specific kind is logged, not exposed.
var (
	ErrNoToken           = errors.New("no token provided")
	ErrInvalidToken      = errors.New("invalid token")
	ErrIncompletePayload = errors.New("token payload is missing required fields")
	ErrUserNotFound      = errors.New("user not found")
)

// Identity is the request-scoped resolved caller: claims from the token plus
// permissions freshly loaded from the credential store. No identity survives
// the request.
type Identity struct {
	Username    string
	Role        string
	Permissions []string
}

// Resolver reconstructs a caller identity from inbound request headers.
type Resolver struct {
	tokens *TokenService
	store  store.Store
	logger logging.Logger
}

func NewResolver(tokens *TokenService, s store.Store, logger logging.Logger) *Resolver {
	return &Resolver{tokens: tokens, store: s, logger: logger}
}

// tokenFromCookies extracts the access token value from a raw Cookie header.
// The first match wins.
func tokenFromCookies(cookieHeader string) string {
	for _, cookie := range strings.Split(cookieHeader, "; ") {
		if strings.HasPrefix(cookie, accessTokenCookie+"=") {
			return strings.SplitN(cookie, "=", 2)[1]
		}
	}
	return ""
}

func cookieHeader(headers map[string]string) string {
	if v, ok := headers["Cookie"]; ok {
		return v
	}
	return headers["cookie"]
}

// Resolve verifies the caller's token and returns its identity. Permissions
// are not trusted from the token since they can change after issuance; the
// user record is re-fetched by username instead.
func (r *Resolver) Resolve(ctx context.Context, headers map[string]string) (*Identity, error) {
	token := tokenFromCookies(cookieHeader(headers))
	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.logger.Warn(ctx, "token verification failed", "reason", err.Error())
		return nil, ErrInvalidToken
	}

	if claims.Username == "" || claims.Role == "" {
		return nil, ErrIncompletePayload
	}

	user, err := r.store.QueryByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &Identity{
		Username:    user.Username,
		Role:        claims.Role,
		Permissions: user.Permissions,
	}, nil
}
