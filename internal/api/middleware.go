// Package api implements the dirstore REST API using chi.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/session"
	"github.com/starford/dirstore/internal/tenant"
)

// Admin auth modes.
const (
	AuthDisabled = "disabled"
	AuthToken    = "token"
	AuthJWT      = "jwt"
)

// AuthConfig selects how admin requests are authenticated.
type AuthConfig struct {
	Mode      string
	Token     string
	JWTSecret string
}

// AuthMiddleware validates the Bearer credential of admin requests.
// In token mode the header must carry the static token. In jwt mode it must
// carry an HS256 token signed with JWTSecret whose "sub" claim is set.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Mode == AuthDisabled || cfg.Mode == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			bearer := strings.TrimPrefix(auth, "Bearer ")
			switch cfg.Mode {
			case AuthToken:
				if bearer != cfg.Token {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			case AuthJWT:
				if err := verifyJWT(bearer, cfg.JWTSecret); err != nil {
					slog.Debug("admin jwt rejected", slog.String("error", err.Error()))
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			default:
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyJWT(raw, secret string) error {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return err
	}
	if sub == "" {
		return errors.New("missing subject")
	}
	return nil
}

type clientKey struct{}

// TenantAuth logs every request in with its HTTP Basic credentials and
// keeps the session open for the lifetime of the request.
func TenantAuth(srv *tenant.Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="dirstore"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			client, err := srv.Login(r.Context(), models.Credentials{Username: user, Password: pass})
			if err != nil {
				if !errors.Is(err, apperr.ErrAuth) {
					slog.Error("tenant login failed", slog.String("user", user), slog.String("error", err.Error()))
				}
				writeError(w, err)
				return
			}
			defer client.Close()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
		})
	}
}

func clientFrom(r *http.Request) *session.Client {
	c, _ := r.Context().Value(clientKey{}).(*session.Client)
	return c
}

// partitionOf names the partition of the authenticated caller, or "".
func partitionOf(r *http.Request) string {
	if c := clientFrom(r); c != nil {
		return c.Partition()
	}
	return ""
}
