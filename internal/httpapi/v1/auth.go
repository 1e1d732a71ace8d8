package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	base "github.com/tinoosan/millmeter/internal/httpapi"
)

// AuthConfig enables HS256 bearer tokens when Secret is set.
// Issuer and Audience are checked only when non-empty.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

const ctxKeySubject ctxKey = "authSubject"

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[len("Bearer "):])
	return tok, tok != ""
}

func publicPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(p, "/v1/dictionary/")
}

// authJWT returns a middleware enforcing Authorization: Bearer <HS256 JWT>,
// or nil when no secret is configured.
func authJWT(cfg AuthConfig) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			tok, ok := parseBearerToken(r)
			if !ok {
				base.WriteErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
				return
			}
			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(tok, &claims, keyFunc); err != nil {
				base.WriteErr(w, http.StatusUnauthorized, "invalid token", "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// subject returns the authenticated token subject, if any.
func subject(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject).(string)
	return s
}
