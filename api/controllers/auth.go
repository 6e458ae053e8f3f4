package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/handmade-market/api/responses"
	"github.com/angelmondragon/handmade-market/api/validators"
	"github.com/angelmondragon/handmade-market/internal/auth"
	pkgAuth "github.com/angelmondragon/handmade-market/pkg/auth"
	"github.com/angelmondragon/handmade-market/pkg/config"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

// AuthRegister creates an account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return bodyAction(logg, svc.Register, responses.WriteCreated)
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return bodyAction(logg, svc.Login, responses.WriteSuccess)
}

// AuthRefresh trades a refresh token for a new pair. The old refresh token
// is spent either way.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return bodyAction(logg, svc.Refresh, responses.WriteSuccess)
}

// bodyAction decodes and validates a Req body, runs call and writes its
// result through write.
func bodyAction[Req, Res any](logg *logger.Logger, call func(context.Context, Req) (Res, error), write func(http.ResponseWriter, any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := call(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		write(w, result)
	}
}

func unavailable(name string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
	}
}

// AuthLogout revokes the session behind the presented access token. Expired
// tokens are accepted so a client can always sign out.
func AuthLogout(svc auth.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionOf(r, cfg)
		if err == nil {
			err = svc.Logout(r.Context(), sessionID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

func sessionOf(r *http.Request, cfg config.JWTConfig) (string, error) {
	token, err := parseBearerToken(r)
	if err != nil {
		return "", err
	}
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(cfg, token)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	return claims.ID, nil
}

func parseBearerToken(r *http.Request) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		token = ""
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}
