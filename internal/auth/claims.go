package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors.
var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// ScopeControl allows control messages and pixel frames over WebSocket.
const ScopeControl = "control"

// DefaultTTL is used when GenerateToken is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Claims are carried by WebSocket access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// GenerateToken creates a signed token for subject.
func GenerateToken(subject, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: ScopeControl,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry, subject and scope.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != ScopeControl {
		return nil, fmt.Errorf("%w: scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}

// Validator authenticates WebSocket upgrade requests.
type Validator struct {
	secret string
}

// NewValidator returns a validator for secret. An empty secret disables
// checking: Authenticate then accepts every request.
func NewValidator(secret string) *Validator {
	return &Validator{secret: secret}
}

// Enabled reports whether tokens are required.
func (v *Validator) Enabled() bool {
	return v != nil && v.secret != ""
}

// Authenticate checks the request token. It returns nil claims when
// checking is disabled.
func (v *Validator) Authenticate(r *http.Request) (*Claims, error) {
	if !v.Enabled() {
		return nil, nil //nolint:nilnil // disabled validator authenticates nobody in particular
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); h != "" {
			token, _ = strings.CutPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return nil, ErrTokenMissing
	}
	return ParseToken(token, v.secret)
}
