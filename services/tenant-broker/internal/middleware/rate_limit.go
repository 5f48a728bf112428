package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ShopPlatform/pkg/errors"
	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/ratelimit"
)

// RateLimitMiddleware ограничивает частоту запросов по IP адресу.
// Используется на эндпоинтах входа, ключ включает путь, чтобы лимиты эндпоинтов не пересекались.
// Заголовки X-Forwarded-For и X-Real-IP учитываются только при trustForwarded, то есть
// когда сервис стоит за прокси, который перезаписывает их сам.
func RateLimitMiddleware(rateLimiter ratelimit.RateLimiter, limit int, window time.Duration, trustForwarded bool, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + getIP(r, trustForwarded) + ":" + r.URL.Path

			limitExceeded, err := rateLimiter.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				log.Error("Rate limit check failed",
					logger.CtxField(r.Context()),
					logger.Error(err),
					logger.String("key", key))
				errors.WriteJSON(w, errors.New(errors.ErrUnavailable, "rate limit service unavailable"))
				return
			}

			if limitExceeded {
				log.Warn("Rate limit exceeded",
					logger.CtxField(r.Context()),
					logger.String("key", key),
					logger.Int("limit", limit),
					logger.String("window", window.String()))

				w.Header().Set("Retry-After", retryAfter(window))
				errors.WriteJSON(w, errors.New(errors.ErrTooManyRequests, "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// getIP извлекает IP адрес клиента.
// При доверии к прокси из X-Forwarded-For берется первый адрес, затем X-Real-IP.
// Иначе и по умолчанию используется RemoteAddr без порта.
func getIP(r *http.Request, trustForwarded bool) string {
	if !trustForwarded {
		return remoteHost(r)
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
