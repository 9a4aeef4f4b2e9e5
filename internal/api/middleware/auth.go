package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/auth"
)

const adminRealm = "tramline-admin"

type operatorKey struct{}

var (
	errNoCredentials = errors.New("missing authorization header")
	errNotBearer     = errors.New("authorization scheme must be Bearer")
)

// RequireScope admits requests that carry a valid operator token granting
// scope. Without a signing key every admin request gets 503.
func RequireScope(tokens *auth.TokenService, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			if tokens == nil || !tokens.Enabled() {
				writeProblem(w, r, models.NewServiceUnavailable(requestID, "admin access is not configured"))
				return
			}

			raw, err := bearerToken(r)
			if err != nil {
				challenge(w, "", "")
				writeProblem(w, r, models.NewUnauthorized(requestID, err.Error()))
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				detail := "invalid operator token"
				if errors.Is(err, auth.ErrTokenExpired) {
					detail = "operator token has expired"
				}
				challenge(w, "invalid_token", detail)
				writeProblem(w, r, models.NewUnauthorized(requestID, detail))
				return
			}

			if !claims.HasScope(scope) {
				challenge(w, "insufficient_scope", "requires "+scope)
				writeProblem(w, r, models.NewForbidden(requestID, "token lacks scope "+scope))
				return
			}

			noteOperator(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), operatorKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator returns the subject of the operator token admitted by
// RequireScope, or "".
func GetOperator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errNoCredentials
	}
	return token, nil
}

// challenge sets the RFC 6750 WWW-Authenticate header.
func challenge(w http.ResponseWriter, code, description string) {
	v := `Bearer realm="` + adminRealm + `"`
	if code != "" {
		v += `, error="` + code + `", error_description="` + description + `"`
	}
	w.Header().Set("WWW-Authenticate", v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}
