package websocket

import (
	"log"

	"linguaconnect/infrastructure/ws"
	"linguaconnect/pkg/protocol"
)

func (h *WebsocketHandler) send(client *ws.UserClient, eventType string, payload interface{}) {
	data, err := protocol.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("Marshal %s error: %v", eventType, err)
		return
	}
	h.hub.SendToClient(client.Id, data)
}

func (h *WebsocketHandler) sendAck(client *ws.UserClient, ack protocol.AckEvent) {
	h.send(client, protocol.TypeAck, ack)
}

func (h *WebsocketHandler) sendError(client *ws.UserClient, code, message string) {
	h.send(client, protocol.TypeError, protocol.ErrorEvent{Code: code, Message: message})
}
