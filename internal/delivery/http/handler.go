package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"linguaconnect/internal/entity"
	"linguaconnect/internal/usecase"

	"github.com/go-chi/chi/v5"
)

var ErrForbiddenUser = errors.New("request user does not match token")

// PresenceReader exposes the active-user snapshot.
type PresenceReader interface {
	Snapshot() []string
}

// RealtimeNotifier pushes REST-originated changes to live connections.
type RealtimeNotifier interface {
	PushNewMessage(ctx context.Context, msg usecase.PersistedMessage) usecase.PersistedMessage
	NotifyChatCreated(chat entity.Chat, initiatorId string) int
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HttpHandler struct {
	chatUc    usecase.ChatUsecase
	messageUc usecase.MessageUsecase
	userUc    usecase.UserUsecase
	presence  PresenceReader
	realtime  RealtimeNotifier
	health    HealthChecker
}

func NewHttpHandler(chatUc usecase.ChatUsecase, messageUc usecase.MessageUsecase, userUc usecase.UserUsecase, presence PresenceReader, realtime RealtimeNotifier, health HealthChecker) *HttpHandler {
	return &HttpHandler{
		chatUc:    chatUc,
		messageUc: messageUc,
		userUc:    userUc,
		presence:  presence,
		realtime:  realtime,
		health:    health,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeResponse(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, usecase.ErrInvalidMessage), errors.Is(err, usecase.ErrSameUser):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrNotParticipant), errors.Is(err, ErrForbiddenUser):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, usecase.ErrChatNotFound), errors.Is(err, usecase.ErrUserNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, usecase.ErrChatExists):
		status, message = http.StatusConflict, err.Error()
	default:
		log.Printf("HTTP handler error: %v", err)
	}

	writeResponse(w, status, Response{Message: message})
}

// actingUser resolves which user a request acts for. With auth enabled the
// token decides and a different requested id is refused.
func actingUser(r *http.Request, requested string) (string, error) {
	claims, ok := r.Context().Value(UserContextKey).(*entity.TokenClaims)
	if !ok {
		return requested, nil
	}
	if requested != "" && requested != claims.UserId {
		return "", ErrForbiddenUser
	}
	return claims.UserId, nil
}

// Method Get /health
func (h *HttpHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			log.Printf("Health check error: %v", err)
			writeResponse(w, http.StatusServiceUnavailable, Response{Message: "database unavailable"})
			return
		}
	}
	writeResponse(w, http.StatusOK, Response{Message: "ok"})
}

// Method Get /users/active
func (h *HttpHandler) ActiveUsers(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, Response{Message: "success", Data: h.presence.Snapshot()})
}

// Method Get /user/:id
func (h *HttpHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userUc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, Response{Message: "success", Data: user})
}

// Method Get /user/:id/chat
func (h *HttpHandler) ListChat(w http.ResponseWriter, r *http.Request) {
	userId, err := actingUser(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	chats, err := h.chatUc.Index(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, Response{Message: "success", Data: chats})
}

// Method Post /chat
func (h *HttpHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	chat, err := h.chatUc.Create(r.Context(), req.User1, req.User2)
	if err != nil {
		writeError(w, err)
		return
	}

	h.realtime.NotifyChatCreated(chat, req.User1)
	writeResponse(w, http.StatusCreated, Response{Message: "success", Data: chat})
}

// Method Put /chat
func (h *HttpHandler) EnsureChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	chat, created, err := h.chatUc.FindOrCreate(r.Context(), req.User1, req.User2)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.realtime.NotifyChatCreated(chat, req.User1)
	}
	writeResponse(w, status, Response{Message: "success", Data: chat})
}

// decodeChatRequest reads {user1, user2}; user1 is the initiator and must be
// the token's user when auth is on.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (entity.CreateChatRequest, bool) {
	var req entity.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return req, false
	}

	initiator, err := actingUser(r, req.User1)
	if err != nil {
		writeError(w, err)
		return req, false
	}
	req.User1 = initiator
	return req, true
}

// Method Delete /chat/:chatId
func (h *HttpHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userId, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.chatUc.Delete(r.Context(), chi.URLParam(r, "chatId"), userId); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, Response{Message: "success"})
}

// Method Get /chat/:chatId/messages
func (h *HttpHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userId, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.messageUc.List(r.Context(), chi.URLParam(r, "chatId"), userId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, Response{Message: "success", Data: messages})
}

// Method Get /chat/:chatId/messages/unread
func (h *HttpHandler) GetUnreadMessages(w http.ResponseWriter, r *http.Request) {
	userId, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.messageUc.Unread(r.Context(), chi.URLParam(r, "chatId"), userId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, Response{Message: "success", Data: messages})
}

// Method Post /chat/:chatId/messages
func (h *HttpHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req entity.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	sender, err := actingUser(r, req.SenderId)
	if err != nil {
		writeError(w, err)
		return
	}
	req.SenderId = sender
	req.ChatId = chi.URLParam(r, "chatId")

	msg, err := h.messageUc.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	msg = h.realtime.PushNewMessage(r.Context(), msg)
	writeResponse(w, http.StatusCreated, Response{Message: "success", Data: msg.Message()})
}
