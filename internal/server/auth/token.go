package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors. Callers treat all of them as "not authenticated"
// but they stay distinguishable for diagnostics.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// Claims is the payload of an issued token: the subject id plus the username
// and role captured at login time. Permissions are deliberately absent; they
// are re-fetched from the store on every request.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// TokenService issues and verifies signed, time-limited bearer tokens. The
// signing secret is process-wide; rotating it invalidates all outstanding
// tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed HS256 token expiring at now + TTL (UTC). The expiry
// is fixed at issuance and not renewable without a fresh login.
func (s *TokenService) Issue(subject int, username, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(subject),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(s.ttl)),
		},
		Username: username,
		Role:     role,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenSignatureInvalid
		}
	}

	if !token.Valid {
		return nil, ErrTokenSignatureInvalid
	}

	return claims, nil
}
