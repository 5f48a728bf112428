package middleware

import (
	"context"
	"net/http"
	"strings"

	"ShopPlatform/pkg/errors"
	"ShopPlatform/pkg/logger"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
)

type claimsKey struct{}

// TokenValidator проверка токена сессии
type TokenValidator interface {
	ValidateToken(token string) (*jwt.TokenClaims, error)
}

// AuthMiddleware проверяет Bearer токен и кладет данные сессии в контекст запроса
func AuthMiddleware(validator TokenValidator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				errors.WriteJSON(w, errors.New(errors.ErrUnauthorized, "authorization header missing"))
				return
			}

			token, ok := bearerToken(authHeader)
			if !ok {
				errors.WriteJSON(w, errors.New(errors.ErrUnauthorized, "unsupported authorization type"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				log.Debug("Token rejected", logger.CtxField(r.Context()), logger.Error(err))
				errors.WriteJSON(w, errors.New(errors.ErrUnauthorized, "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// WithClaims кладет данные сессии в контекст
func WithClaims(ctx context.Context, claims *jwt.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext данные сессии, положенные AuthMiddleware
func ClaimsFromContext(ctx context.Context) (*jwt.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*jwt.TokenClaims)
	return claims, ok && claims != nil
}
