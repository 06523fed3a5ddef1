package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeRulesWrite allows replacing the triage rule set.
const ScopeRulesWrite = "rules:write"

// OperatorClaims are the claims carried by an operator's admin token. Scope is
// a space-separated list, as in OAuth 2.0.
type OperatorClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants want.
func (c OperatorClaims) HasScope(want string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == want {
			return true
		}
	}
	return false
}

type operatorKey struct{}

// AdminJWT guards rule administration with an HMAC-signed bearer token that
// must expire and must carry the rules:write scope. An empty secret leaves the
// route open, matching the original deployment where the configure page had
// no authentication.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	key := []byte(strings.TrimSpace(secret))
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(next http.Handler) http.Handler {
		if len(key) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			var claims OperatorClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !claims.HasScope(ScopeRulesWrite) {
				writeJSONError(w, http.StatusForbidden, "token lacks "+ScopeRulesWrite+" scope")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, claims)))
		})
	}
}

// OperatorFromContext returns the verified operator claims, if any.
func OperatorFromContext(ctx context.Context) (OperatorClaims, bool) {
	claims, ok := ctx.Value(operatorKey{}).(OperatorClaims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
