package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/therapy-scheduler/internal/identity"
)

// PrincipalClaims is the token body: the standard subject plus a role.
type PrincipalClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate verifies an HMAC-signed bearer token and stores the caller as
// an identity.Principal in the request context. An empty secret disables
// authentication and leaves requests anonymous.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "missing authorization header")
				return
			}
			claims := PrincipalClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}
			principal, ok := principalFromClaims(claims)
			if !ok {
				writeUnauthorized(w, "token has no usable subject or role")
				return
			}
			ctx := identity.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromClaims(claims PrincipalClaims) (identity.Principal, bool) {
	subject := strings.TrimSpace(claims.Subject)
	role := identity.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	switch role {
	case identity.RoleTherapist, identity.RolePatient, identity.RoleAdmin:
	default:
		return identity.Principal{}, false
	}
	if subject == "" {
		return identity.Principal{}, false
	}
	return identity.Principal{Subject: subject, Role: role}, true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="therapy"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
