package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"linguaconnect/infrastructure/ws"
	"linguaconnect/internal/entity"
	"linguaconnect/internal/presence"
	"linguaconnect/internal/repository"
	"linguaconnect/internal/repository/memrepo"
	"linguaconnect/internal/usecase"
	"linguaconnect/pkg/jwt"
	"linguaconnect/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	server      *httptest.Server
	hub         ws.IHub
	registry    *presence.Registry
	handler     *WebsocketHandler
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	chats       usecase.ChatUsecase
	messages    usecase.MessageUsecase
}

func newGateway(t *testing.T, configure func(*WebsocketHandler)) *gateway {
	t.Helper()
	userRepo := memrepo.NewUserRepository(
		entity.User{Id: "alice", Name: "Alice"},
		entity.User{Id: "bob", Name: "Bob"},
		entity.User{Id: "carol", Name: "Carol"},
	)
	chatRepo := memrepo.NewChatRepository()
	messageRepo := memrepo.NewMessageRepository()

	userUc := usecase.NewUserUseCase(userRepo)
	chatUc := usecase.NewChatUsecase(chatRepo, userRepo, messageRepo)
	messageUc := usecase.NewMessageUseCase(messageRepo, chatRepo)

	hub := ws.NewHub()
	registry := presence.NewRegistry(userUc, NewStatusBroadcaster(hub))
	handler := NewWebsocketHandler(hub, registry, userUc, messageUc, ws.DefaultClientConfig())
	if configure != nil {
		configure(handler)
	}
	hub.SetOnClientUnregister(handler.HandleUnregisterClient)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		hub.Stop()
		cancel()
	})

	return &gateway{
		server:      server,
		hub:         hub,
		registry:    registry,
		handler:     handler,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		chats:       chatUc,
		messages:    messageUc,
	}
}

func (g *gateway) url(query string) string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http") + query
}

func (g *gateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.url(""), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gateway) connectAs(t *testing.T, userId string) *websocket.Conn {
	t.Helper()
	conn := g.dial(t)
	ack := identify(t, conn, userId)
	require.True(t, ack.OK, ack.Error)
	return conn
}

func identify(t *testing.T, conn *websocket.Conn, userId string) protocol.AckEvent {
	t.Helper()
	writeEvent(t, conn, protocol.IdentifyEvent{Type: protocol.TypeIdentify, UserId: userId})
	return readAck(t, conn, protocol.TypeIdentify)
}

func writeEvent(t *testing.T, conn *websocket.Conn, event interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

// readUntil skips frames until one of eventType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		got, event, err := protocol.ParseServerEvent(data)
		require.NoError(t, err)
		if got == eventType {
			return event
		}
	}
}

func readAck(t *testing.T, conn *websocket.Conn, forEvent string) protocol.AckEvent {
	t.Helper()
	for {
		ack := readUntil(t, conn, protocol.TypeAck).(protocol.AckEvent)
		if ack.Event == forEvent {
			return ack
		}
	}
}

func sendMessage(t *testing.T, conn *websocket.Conn, chatId, sender, content string) protocol.AckEvent {
	t.Helper()
	writeEvent(t, conn, protocol.SendMessageEvent{
		Type:    protocol.TypeSendMessage,
		AckId:   "ack-1",
		Chat:    chatId,
		Sender:  sender,
		Content: content,
	})
	return readAck(t, conn, protocol.TypeSendMessage)
}

func TestGateway_MultiTabPresence(t *testing.T) {
	g := newGateway(t, nil)
	observer := g.dial(t)
	require.Eventually(t, func() bool { return g.hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	tab1 := g.connectAs(t, "alice")
	require.Eventually(t, func() bool {
		user, err := g.userRepo.Get(context.Background(), "alice")
		return err == nil && user.IsActive
	}, 2*time.Second, 10*time.Millisecond)
	tab2 := g.connectAs(t, "alice")
	assert.Equal(t, []string{"alice"}, g.registry.Snapshot())

	tab1.Close()
	require.Eventually(t, func() bool { return g.hub.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, g.registry.IsActive("alice"), "second tab keeps the user active")

	tab2.Close()
	require.Eventually(t, func() bool { return !g.registry.IsActive("alice") }, 2*time.Second, 10*time.Millisecond)

	// two identifies and two closes
	for i := 0; i < 4; i++ {
		readUntil(t, observer, protocol.TypeUserStatusChange)
	}
	require.NoError(t, observer.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := observer.ReadMessage()
	assert.Error(t, err, "no broadcast beyond the final unregister")

	require.Eventually(t, func() bool {
		user, err := g.userRepo.Get(context.Background(), "alice")
		return err == nil && !user.IsActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_SendMessageToConnectedRecipient(t *testing.T) {
	g := newGateway(t, nil)
	chat, err := g.chats.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)

	alice := g.connectAs(t, "alice")
	bob := g.connectAs(t, "bob")

	ack := sendMessage(t, alice, chat.Id, "alice", "hello")
	require.True(t, ack.OK, ack.Error)
	assert.Equal(t, "ack-1", ack.AckId)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "hello", ack.Message.Content)
	assert.NotNil(t, ack.Message.Delivered)

	pushed := readUntil(t, bob, protocol.TypeNewMessage).(protocol.NewMessageEvent)
	assert.Equal(t, ack.Message.Id, pushed.Message.Id)
	assert.Equal(t, "hello", pushed.Message.Content)
	assert.Equal(t, "alice", pushed.Message.SenderId)

	stored, err := g.messageRepo.Get(context.Background(), ack.Message.Id)
	require.NoError(t, err)
	assert.NotNil(t, stored.Delivered)
}

func TestGateway_SendMessageToDisconnectedRecipient(t *testing.T) {
	g := newGateway(t, nil)
	chat, err := g.chats.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)

	alice := g.connectAs(t, "alice")
	ack := sendMessage(t, alice, chat.Id, "", "are you there?")
	require.True(t, ack.OK, ack.Error)
	assert.Nil(t, ack.Message.Delivered)

	history, err := g.messages.List(context.Background(), chat.Id, "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "are you there?", history[0].Content)
}

func TestGateway_SendMessageRejections(t *testing.T) {
	g := newGateway(t, nil)
	chat, err := g.chats.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)

	anonymous := g.dial(t)
	ack := sendMessage(t, anonymous, chat.Id, "alice", "hi")
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "identify")

	alice := g.connectAs(t, "alice")
	carol := g.connectAs(t, "carol")

	tests := []struct {
		name    string
		conn    *websocket.Conn
		chatId  string
		sender  string
		content string
	}{
		{"empty content", alice, chat.Id, "alice", ""},
		{"spoofed sender", alice, chat.Id, "bob", "hi"},
		{"unknown chat", alice, "missing", "alice", "hi"},
		{"not a participant", carol, chat.Id, "carol", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := sendMessage(t, tt.conn, tt.chatId, tt.sender, tt.content)
			assert.False(t, ack.OK)
			assert.NotEmpty(t, ack.Error)
			assert.Nil(t, ack.Message)
		})
	}

	history, err := g.messages.List(context.Background(), chat.Id, "")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGateway_MessagesReadPushesReceipt(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	chat, err := g.chats.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	bob := g.connectAs(t, "bob")
	require.True(t, sendMessage(t, bob, chat.Id, "bob", "one").OK)
	require.True(t, sendMessage(t, bob, chat.Id, "bob", "two").OK)

	alice := g.connectAs(t, "alice")
	writeEvent(t, alice, protocol.MessagesReadEvent{Type: protocol.TypeMessagesRead, Chat: chat.Id, UserId: "alice"})
	ack := readAck(t, alice, protocol.TypeMessagesRead)
	require.True(t, ack.OK, ack.Error)

	receipt := readUntil(t, bob, protocol.TypeMessagesRead).(protocol.ReadReceiptEvent)
	assert.Equal(t, chat.Id, receipt.Chat)
	assert.Equal(t, "alice", receipt.UserId)
	assert.False(t, receipt.ReadAt.IsZero())

	unread, err := g.messages.Unread(ctx, chat.Id, "alice")
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestGateway_ManualDisconnectKeepsTransport(t *testing.T) {
	g := newGateway(t, nil)
	alice := g.connectAs(t, "alice")

	writeEvent(t, alice, protocol.ManualDisconnectEvent{Type: protocol.TypeManualDisconnect, UserId: "alice"})
	ack := readAck(t, alice, protocol.TypeManualDisconnect)
	assert.True(t, ack.OK)
	assert.False(t, g.registry.IsActive("alice"))

	writeEvent(t, alice, protocol.PingEvent{Type: protocol.TypePing})
	readUntil(t, alice, protocol.TypePong)
	assert.Equal(t, 1, g.hub.GetClientCount())
}

func TestGateway_IdentifyRejections(t *testing.T) {
	g := newGateway(t, nil)
	conn := g.dial(t)

	assert.False(t, identify(t, conn, "").OK)
	ack := identify(t, conn, "mallory")
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "not found")
	assert.Empty(t, g.registry.Snapshot())
}

func TestGateway_InvalidFrames(t *testing.T) {
	g := newGateway(t, nil)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	event := readUntil(t, conn, protocol.TypeError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.CodeParseError, event.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	event = readUntil(t, conn, protocol.TypeError).(protocol.ErrorEvent)
	assert.Equal(t, protocol.CodeInvalidEvent, event.Code)
}

func TestGateway_TokenPinsIdentity(t *testing.T) {
	tokens := jwt.NewJWTManager("test-secret", time.Minute)
	g := newGateway(t, func(h *WebsocketHandler) { h.SetTokenValidator(tokens) })

	_, resp, err := websocket.DefaultDialer.Dial(g.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tokens.GenerateAccessToken(entity.User{Id: "alice"})
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(g.url("?token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, identify(t, conn, "bob").OK)
	assert.True(t, identify(t, conn, "alice").OK)
}

func TestGateway_NotifyChatCreated(t *testing.T) {
	g := newGateway(t, nil)
	bob := g.connectAs(t, "bob")

	chat, err := g.chats.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, g.handler.NotifyChatCreated(chat, "alice"))

	event := readUntil(t, bob, protocol.TypeNewChatInitiated).(protocol.NewChatInitiatedEvent)
	assert.Equal(t, chat.Id, event.Chat.Id)
}

// gatedUsers holds user lookups until release is closed.
type gatedUsers struct {
	usecase.UserUsecase
	entered chan struct{}
	release chan struct{}
}

func (u *gatedUsers) Get(ctx context.Context, userId string) (entity.User, error) {
	u.entered <- struct{}{}
	<-u.release
	return u.UserUsecase.Get(ctx, userId)
}

// capturingHub hands out every client the handler registers.
type capturingHub struct {
	ws.IHub
	registered chan *ws.UserClient
}

func (h *capturingHub) RegisterClient(client *ws.UserClient) {
	h.IHub.RegisterClient(client)
	h.registered <- client
}

func TestGateway_DroppedConnectionDoesNotStayActive(t *testing.T) {
	userRepo := memrepo.NewUserRepository(entity.User{Id: "alice"})
	chatRepo := memrepo.NewChatRepository()
	userUc := usecase.NewUserUseCase(userRepo)
	messageUc := usecase.NewMessageUseCase(memrepo.NewMessageRepository(), chatRepo)
	users := &gatedUsers{UserUsecase: userUc, entered: make(chan struct{}, 1), release: make(chan struct{})}

	hub := &capturingHub{IHub: ws.NewHub(), registered: make(chan *ws.UserClient, 1)}
	var changes atomic.Int32
	registry := presence.NewRegistry(userUc, presence.NotifierFunc(func() { changes.Add(1) }))
	handler := NewWebsocketHandler(hub, registry, users, messageUc, ws.DefaultClientConfig())
	hub.SetOnClientUnregister(handler.HandleUnregisterClient)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)
	go hub.Run()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		hub.Stop()
		cancel()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var client *ws.UserClient
	select {
	case client = <-hub.registered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not registered")
	}

	writeEvent(t, conn, protocol.IdentifyEvent{Type: protocol.TypeIdentify, UserId: "alice"})
	select {
	case <-users.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("identify did not reach the user lookup")
	}

	// the hub gives up on the connection while identify is still running
	hub.UnregisterClient(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	close(users.release)

	// one change for the late identify, one for releasing it
	require.Eventually(t, func() bool { return changes.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, registry.IsActive("alice"))
	assert.Empty(t, registry.Snapshot())
	require.Eventually(t, func() bool {
		user, err := userRepo.Get(context.Background(), "alice")
		return err == nil && !user.IsActive
	}, 2*time.Second, 10*time.Millisecond)
}
