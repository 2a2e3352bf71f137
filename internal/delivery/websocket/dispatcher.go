package websocket

import (
	"context"
	"log"
	"time"

	"linguaconnect/infrastructure/metrics"
	"linguaconnect/infrastructure/ws"
	"linguaconnect/internal/entity"
	"linguaconnect/pkg/protocol"
)

// handleMessage routes one inbound frame. Frames of a connection are handled
// in order because the read pump waits for each call to return.
func (h *WebsocketHandler) handleMessage(ctx context.Context, client *ws.UserClient, data []byte) {
	eventType, event, err := protocol.ParseClientEvent(data)
	if err != nil {
		code := protocol.CodeParseError
		if eventType != "" {
			code = protocol.CodeInvalidEvent
		}
		h.sendError(client, code, err.Error())
		return
	}

	switch e := event.(type) {
	case protocol.IdentifyEvent:
		h.handleIdentify(ctx, client, e)
	case protocol.ManualDisconnectEvent:
		h.handleManualDisconnect(client, e)
	case protocol.SendMessageEvent:
		h.handleSendMessage(ctx, client, e)
	case protocol.MessagesReadEvent:
		h.handleMessagesRead(ctx, client, e)
	case protocol.PingEvent:
		h.send(client, protocol.TypePong, protocol.PongEvent{})
	}
}

func (h *WebsocketHandler) handleIdentify(ctx context.Context, client *ws.UserClient, e protocol.IdentifyEvent) {
	ack := protocol.AckEvent{Event: protocol.TypeIdentify}

	switch {
	case e.UserId == "":
		ack.Error = "userId is required"
	case client.AuthUserId != "" && client.AuthUserId != e.UserId:
		ack.Error = "userId does not match the connection token"
	default:
		if err := h.ensureUser(ctx, e.UserId); err != nil {
			ack.Error = err.Error()
		}
	}
	if ack.Error != "" {
		h.sendAck(client, ack)
		return
	}

	h.registry.Register(client.Id, e.UserId)
	ack.OK = true
	h.sendAck(client, ack)
}

// handleManualDisconnect marks the user away while keeping the socket open.
func (h *WebsocketHandler) handleManualDisconnect(client *ws.UserClient, e protocol.ManualDisconnectEvent) {
	ack := protocol.AckEvent{Event: protocol.TypeManualDisconnect, OK: true}

	userId, identified := h.registry.UserOf(client.Id)
	if identified {
		if e.UserId != "" && e.UserId != userId {
			ack.OK = false
			ack.Error = "userId does not match this connection"
		} else {
			h.registry.Unregister(client.Id)
		}
	}

	h.sendAck(client, ack)
}

func (h *WebsocketHandler) handleSendMessage(ctx context.Context, client *ws.UserClient, e protocol.SendMessageEvent) {
	start := time.Now()
	defer func() { metrics.MessageLatency.Observe(time.Since(start).Seconds()) }()

	ack := protocol.AckEvent{Event: protocol.TypeSendMessage, AckId: e.AckId}

	userId, identified := h.registry.UserOf(client.Id)
	sender := e.Sender
	if sender == "" {
		sender = userId
	}
	switch {
	case !identified:
		ack.Error = "identify before sending messages"
	case sender != userId:
		ack.Error = "sender does not match the identified user"
	}
	if ack.Error != "" {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		h.sendAck(client, ack)
		return
	}

	msg, err := h.messageUc.Send(ctx, entity.SendMessageRequest{
		ChatId:   e.Chat,
		SenderId: sender,
		Content:  e.Content,
		ImageRef: e.ImageRef,
	})
	if err != nil {
		log.Printf("send-message from %s rejected: %v", sender, err)
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		ack.Error = err.Error()
		h.sendAck(client, ack)
		return
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	msg = h.PushNewMessage(ctx, msg)

	stored := msg.Message()
	ack.OK = true
	ack.Message = &stored
	h.sendAck(client, ack)
}

func (h *WebsocketHandler) handleMessagesRead(ctx context.Context, client *ws.UserClient, e protocol.MessagesReadEvent) {
	ack := protocol.AckEvent{Event: protocol.TypeMessagesRead, AckId: e.AckId}

	userId, identified := h.registry.UserOf(client.Id)
	switch {
	case !identified:
		ack.Error = "identify before reading messages"
	case e.UserId != "" && e.UserId != userId:
		ack.Error = "userId does not match the identified user"
	}
	if ack.Error != "" {
		h.sendAck(client, ack)
		return
	}

	result, err := h.messageUc.MarkRead(ctx, e.Chat, userId)
	if err != nil {
		log.Printf("messages-read chat=%s user=%s error: %v", e.Chat, userId, err)
		ack.Error = err.Error()
		h.sendAck(client, ack)
		return
	}

	if result.Receipt.Count > 0 {
		receipt := protocol.ReadReceiptEvent{
			Chat:   result.Receipt.ChatId,
			UserId: result.Receipt.UserId,
			ReadAt: result.Receipt.ReadAt,
		}
		if data, err := protocol.NewEvent(protocol.TypeMessagesRead, receipt); err == nil {
			h.sendToUser(result.Recipient, data)
		} else {
			log.Printf("Marshal read receipt error: %v", err)
		}
	}

	ack.OK = true
	h.sendAck(client, ack)
}
