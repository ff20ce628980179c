package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken   = errors.New("missing token")
	ErrBadToken  = errors.New("invalid token")
	ErrForbidden = errors.New("forbidden")
)

// Roles ordered by privilege; a caller passes any check at or below its own rank.
var roleRank = map[string]int{
	"public":   0,
	"user":     1,
	"resident": 2,
	"admin":    3,
	"service":  4,
}

type Claims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// Verifier checks RS256 tokens issued by the auth service.
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(key *rsa.PublicKey) *Verifier { return &Verifier{key: key} }

// LoadVerifier reads a PEM public key from path.
func LoadVerifier(path string) (*Verifier, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return NewVerifier(key), nil
}

// Authorize returns the token's claims when it is valid and carries at least the required role.
func (v *Verifier) Authorize(r *http.Request, required string) (*Claims, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, ErrNoToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	need, known := roleRank[required]
	if !known || roleRank[claims.Role] < need {
		return claims, ErrForbidden
	}
	return claims, nil
}

// Require guards a route group. A nil verifier answers 503 so protected routes fail closed.
func Require(v *Verifier, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.key == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "authentication not configured")
				return
			}
			claims, err := v.Authorize(r, role)
			switch {
			case errors.Is(err, ErrForbidden):
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			case errors.Is(err, ErrNoToken):
				writeJSONError(w, http.StatusUnauthorized, "missing token")
				return
			case err != nil:
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func GetClaims(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsKey{}).(*Claims)
	return claims
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message, "code": status})
}

// bearer reads the Authorization header, then the auth_token cookie used by browser sessions.
func bearer(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}
