package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"linguaconnect/infrastructure/cache"
	"linguaconnect/infrastructure/metrics"
	"linguaconnect/infrastructure/ws"
	"linguaconnect/internal/entity"
	"linguaconnect/internal/presence"
	"linguaconnect/internal/usecase"
	"linguaconnect/pkg/protocol"

	"github.com/gorilla/websocket"
)

const knownUserTTL = 5 * time.Minute

type TokenValidator interface {
	ValidateAccessToken(token string) (*entity.TokenClaims, error)
}

type WebsocketHandler struct {
	hub        ws.IHub
	registry   *presence.Registry
	userUc     usecase.UserUsecase
	messageUc  usecase.MessageUsecase
	upgrader   websocket.Upgrader
	clientCfg  ws.ClientConfig
	tokens     TokenValidator
	knownUsers *cache.MemCache
}

func NewWebsocketHandler(hub ws.IHub, registry *presence.Registry, userUc usecase.UserUsecase, messageUc usecase.MessageUsecase, clientCfg ws.ClientConfig) *WebsocketHandler {
	return &WebsocketHandler{
		hub:       hub,
		registry:  registry,
		userUc:    userUc,
		messageUc: messageUc,
		clientCfg: clientCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetTokenValidator makes /ws require a valid ?token= and pins identify to
// the token's user.
func (h *WebsocketHandler) SetTokenValidator(tokens TokenValidator) {
	h.tokens = tokens
}

// SetUserCache lets identify skip the user lookup for recently seen ids.
func (h *WebsocketHandler) SetUserCache(knownUsers *cache.MemCache) {
	h.knownUsers = knownUsers
}

func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var authUserId string
	if h.tokens != nil {
		claims, err := h.tokens.ValidateAccessToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		authUserId = claims.UserId
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(authUserId, h.hub, conn, h.clientCfg)
	h.hub.RegisterClient(client)

	ctx := r.Context()
	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.handleMessage(ctx, client, data)
	})

	// The hub may have dropped the client while an identify was still in
	// flight; its entry must not outlive the socket.
	h.HandleUnregisterClient(client)
}

// HandleUnregisterClient runs when the hub drops a connection, whatever the
// reason, and releases its presence entry.
func (h *WebsocketHandler) HandleUnregisterClient(client *ws.UserClient) error {
	if userId, ok := h.registry.Unregister(client.Id); ok {
		log.Printf("ws: user %s left on connection %s", userId, client.Id)
	}
	return nil
}

// PushNewMessage sends a stored message to every live connection of its
// recipient and records delivery when at least one push was queued.
func (h *WebsocketHandler) PushNewMessage(ctx context.Context, msg usecase.PersistedMessage) usecase.PersistedMessage {
	data, err := protocol.NewEvent(protocol.TypeNewMessage, protocol.NewMessageEvent{Message: msg.Message()})
	if err != nil {
		log.Printf("Marshal new-message error: %v", err)
		return msg
	}

	if h.sendToUser(msg.Recipient(), data) == 0 {
		metrics.MessagesTotal.WithLabelValues("undelivered").Inc()
		return msg
	}
	metrics.MessagesTotal.WithLabelValues("pushed").Inc()

	delivered, err := h.messageUc.MarkDelivered(ctx, msg)
	if err != nil {
		log.Printf("MarkDelivered message=%s error: %v", msg.Message().Id, err)
		return msg
	}
	return delivered
}

// NotifyChatCreated tells the participant who did not start the chat about it.
func (h *WebsocketHandler) NotifyChatCreated(chat entity.Chat, initiatorId string) int {
	data, err := protocol.NewEvent(protocol.TypeNewChatInitiated, protocol.NewChatInitiatedEvent{Chat: chat})
	if err != nil {
		log.Printf("Marshal newChatInitiated error: %v", err)
		return 0
	}
	return h.sendToUser(chat.Partner(initiatorId), data)
}

func (h *WebsocketHandler) sendToUser(userId string, data []byte) int {
	if userId == "" {
		return 0
	}
	sent := 0
	for _, connId := range h.registry.Connections(userId) {
		if h.hub.SendToClient(connId, data) {
			sent++
		}
	}
	return sent
}

// ensureUser rejects ids the user store does not know. Store outages are
// logged and let through so that presence keeps working.
func (h *WebsocketHandler) ensureUser(ctx context.Context, userId string) error {
	if h.knownUsers != nil {
		if _, ok := h.knownUsers.Get(userId); ok {
			return nil
		}
	}

	_, err := h.userUc.Get(ctx, userId)
	if errors.Is(err, usecase.ErrUserNotFound) {
		return err
	}
	if err != nil {
		log.Printf("identify: user lookup for %s failed, accepting: %v", userId, err)
		return nil
	}

	if h.knownUsers != nil {
		h.knownUsers.Set(userId, true, knownUserTTL)
	}
	return nil
}

// StatusBroadcaster announces presence changes to every open connection.
type StatusBroadcaster struct {
	hub     ws.IHub
	payload []byte
}

func NewStatusBroadcaster(hub ws.IHub) *StatusBroadcaster {
	payload, err := protocol.NewEvent(protocol.TypeUserStatusChange, protocol.UserStatusChangeEvent{})
	if err != nil {
		panic(err)
	}
	return &StatusBroadcaster{hub: hub, payload: payload}
}

func (b *StatusBroadcaster) NotifyStatusChange() {
	b.hub.Broadcast(b.payload)
	metrics.StatusBroadcasts.Inc()
}
