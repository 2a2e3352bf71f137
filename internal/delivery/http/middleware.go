package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"linguaconnect/infrastructure/metrics"
	"linguaconnect/infrastructure/ratelimit"
	"linguaconnect/internal/entity"
)

type contextKey string

const UserContextKey contextKey = "user"

type TokenValidator interface {
	ValidateAccessToken(token string) (*entity.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeResponse(w, http.StatusUnauthorized, Response{Message: "authorization header required"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeResponse(w, http.StatusUnauthorized, Response{Message: "invalid authorization header format"})
			return
		}

		claims, err := m.tokens.ValidateAccessToken(parts[1])
		if err != nil {
			writeResponse(w, http.StatusUnauthorized, Response{Message: "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit caps requests per client IP. Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, _ := limiter.Allow(r.Context(), clientIP(r), rule)
			if !allowed {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
				writeResponse(w, http.StatusTooManyRequests, Response{Message: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
