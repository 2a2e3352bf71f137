package http

import (
	"net/http"

	"linguaconnect/infrastructure/metrics"
	"linguaconnect/infrastructure/ratelimit"
	wsDelivery "linguaconnect/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
)

// MapHttpRoutes wires every route. authMiddleware may be nil, which leaves
// the REST routes open.
func MapHttpRoutes(r chi.Router, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authMiddleware *AuthMiddleware, limiter ratelimit.Limiter, rule ratelimit.Rule) {
	r.Get("/health", httpHandler.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws", http.HandlerFunc(websocketHandler.HandleWebSocket))

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(limiter, rule))
		if authMiddleware != nil {
			r.Use(authMiddleware.Authenticate)
		}

		r.Get("/users/active", httpHandler.ActiveUsers)

		// Chat routes
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", httpHandler.CreateChat)
			r.Put("/", httpHandler.EnsureChat)
			r.Delete("/{chatId}", httpHandler.DeleteChat)
			r.Get("/{chatId}/messages", httpHandler.GetMessages)
			r.Post("/{chatId}/messages", httpHandler.PostMessage)
			r.Get("/{chatId}/messages/unread", httpHandler.GetUnreadMessages)
		})

		// User routes
		r.Route("/user", func(r chi.Router) {
			r.Get("/{id}", httpHandler.GetUser)
			r.Get("/{id}/chat", httpHandler.ListChat)
		})
	})
}
