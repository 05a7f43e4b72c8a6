package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

const (
	RoleCitizen    = "citizen"
	RoleResearcher = "researcher"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

type userContextKey struct {
	name string
}

var userCtxKey = &userContextKey{"user"}

type User struct {
	ID   string
	Role string
}

// NewAuthenticator returns a middleware that verifies the bearer token on
// incoming requests and asks the authz policy whether the role in the token
// is allowed to access the requested path.
func NewAuthenticator(ctx context.Context, logger zerolog.Logger, secret []byte, policies io.Reader) (func(http.Handler) http.Handler, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %w", err)
	}

	query, err := rego.New(
		rego.Query("x = data.cityops.authz.allow"),
		rego.Module("authz.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	tokenAuth := jwtauth.New("HS256", secret, nil)

	return func(next http.Handler) http.Handler {
		return jwtauth.Verifier(tokenAuth)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				token, claims, err := jwtauth.FromContext(r.Context())
				if err != nil || token == nil {
					logger.Info().Msg("request without a valid bearer token")
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}

				role, _ := claims["role"].(string)

				path := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

				input := map[string]any{
					"role":   role,
					"path":   path,
					"method": r.Method,
				}

				results, err := query.Eval(r.Context(), rego.EvalInput(input))
				if err != nil {
					logger.Error().Err(err).Msg("authz policy evaluation failed")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				if len(results) == 0 {
					err = errors.New("authz query could not be satisfied")
					logger.Error().Err(err).Msg("authorization failed")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				allowed, ok := results[0].Bindings["x"].(bool)
				if !ok || !allowed {
					logger.Warn().Msgf("role %s is not allowed to access %s", role, r.URL.Path)
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}

				user := User{
					ID:   token.Subject(),
					Role: role,
				}

				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			}),
		)
	}, nil
}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func GetUserFromContext(ctx context.Context) User {
	user, ok := ctx.Value(userCtxKey).(User)
	if !ok {
		return User{}
	}

	return user
}
