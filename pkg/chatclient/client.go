// Package chatclient is the consuming side of the realtime gateway. A Client
// keeps one websocket open for a user, reconnecting with a fixed delay, and
// routes server events into a Session.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"linguaconnect/internal/entity"
	"linguaconnect/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("chatclient: not connected")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const writeWait = 10 * time.Second

type Config struct {
	// ServerURL is the gateway's http(s) base URL.
	ServerURL      string
	UserId         string
	Token          string
	ReconnectDelay time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	// OnUpdate runs after every change applied to the Session.
	OnUpdate func()
	// OnAlert receives rejected sends and server errors.
	OnAlert  func(message string)
	// OnState runs on every connection state change.
	OnState  func(State)
}

type Client struct {
	cfg     Config
	session *Session
	state   atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	// serialises frames written from Run and from API calls
	writeMu sync.Mutex
}

func NewClient(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	return &Client{
		cfg:     cfg,
		session: NewSession(cfg.UserId),
	}
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Run connects and keeps reconnecting every ReconnectDelay until ctx ends.
// Each connection re-identifies and re-pulls the active users and chat list.
func (c *Client) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		log.Printf("chatclient: connection lost: %v", err)
		c.setState(StateReconnecting)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// serve runs one connection until it fails.
func (c *Client) serve(ctx context.Context) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.send(protocol.TypeIdentify, protocol.IdentifyEvent{UserId: c.cfg.UserId}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if err := c.pullSnapshot(ctx); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	c.setState(StateConnected)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	_, event, err := protocol.ParseServerEvent(data)
	if err != nil {
		log.Printf("chatclient: %v", err)
		return
	}

	switch e := event.(type) {
	case protocol.UserStatusChangeEvent:
		if err := c.pullActiveUsers(ctx); err != nil {
			log.Printf("chatclient: refresh active users: %v", err)
			return
		}
	case protocol.NewMessageEvent:
		if c.session.ApplyNewMessage(e.Message) {
			c.markRead(e.Message.ChatId)
		}
	case protocol.NewChatInitiatedEvent:
		c.session.AddChat(e.Chat)
	case protocol.ReadReceiptEvent:
		c.session.ApplyReadReceipt(e.Chat, e.UserId, e.ReadAt)
	case protocol.AckEvent:
		if !e.OK {
			c.alert(fmt.Sprintf("%s rejected: %s", e.Event, e.Error))
			return
		}
		if e.Event != protocol.TypeSendMessage || e.Message == nil {
			return
		}
		c.session.ApplyNewMessage(*e.Message)
	case protocol.ErrorEvent:
		c.alert(e.Message)
		return
	default:
		return
	}
	c.notify()
}

// OpenChat loads the chat's history, makes it current and reports it read.
func (c *Client) OpenChat(ctx context.Context, chatId string) error {
	var history []entity.Message
	path := "/chat/" + url.PathEscape(chatId) + "/messages?userId=" + url.QueryEscape(c.cfg.UserId)
	if err := c.get(ctx, path, &history); err != nil {
		return err
	}

	c.session.Open(chatId, history)
	c.notify()
	return c.markRead(chatId)
}

// SendMessage emits send-message. The stored message arrives with the ack.
func (c *Client) SendMessage(chatId, content, imageRef string) error {
	return c.send(protocol.TypeSendMessage, protocol.SendMessageEvent{
		AckId:    uuid.NewString(),
		Chat:     chatId,
		Sender:   c.cfg.UserId,
		Content:  content,
		ImageRef: imageRef,
	})
}

// Disconnect marks the user away while keeping the transport open.
func (c *Client) Disconnect() error {
	return c.send(protocol.TypeManualDisconnect, protocol.ManualDisconnectEvent{UserId: c.cfg.UserId})
}

func (c *Client) markRead(chatId string) error {
	err := c.send(protocol.TypeMessagesRead, protocol.MessagesReadEvent{Chat: chatId, UserId: c.cfg.UserId})
	if err != nil {
		log.Printf("chatclient: messages-read for chat %s: %v", chatId, err)
	}
	return err
}

func (c *Client) send(eventType string, payload interface{}) error {
	data, err := protocol.NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) pullSnapshot(ctx context.Context) error {
	if err := c.pullActiveUsers(ctx); err != nil {
		return err
	}

	var chats []entity.ChatSummary
	if err := c.get(ctx, "/user/"+url.PathEscape(c.cfg.UserId)+"/chat", &chats); err != nil {
		return err
	}
	c.session.SetChats(chats)
	c.notify()
	return nil
}

func (c *Client) pullActiveUsers(ctx context.Context) error {
	var active []string
	if err := c.get(ctx, "/users/active", &active); err != nil {
		return err
	}
	c.session.SetActiveUsers(active)
	return nil
}

type response struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+path, nil)
	if err != nil {
		return err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, body.Message)
	}
	if len(body.Data) == 0 {
		return nil
	}
	return json.Unmarshal(body.Data, out)
}

func (c *Client) wsURL() string {
	u := c.cfg.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u += "/ws"
	if c.cfg.Token != "" {
		u += "?token=" + url.QueryEscape(c.cfg.Token)
	}
	return u
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Client) notify() {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate()
	}
}

func (c *Client) alert(message string) {
	if c.cfg.OnAlert != nil {
		c.cfg.OnAlert(message)
	}
}
