package ws

import (
	"log"
	"sync"

	"linguaconnect/infrastructure/metrics"
)

// Hub owns the set of open connections, keyed by connection id. One user may
// hold several connections at once.
type Hub struct {
	clients            map[string]*UserClient
	register           chan *UserClient
	unregister         chan *UserClient
	quit               chan struct{}
	stopOnce           sync.Once
	mu                 sync.RWMutex
	onClientUnregister func(client *UserClient) error
}

func NewHub() IHub {
	return &Hub{
		clients:    make(map[string]*UserClient),
		register:   make(chan *UserClient),
		unregister: make(chan *UserClient),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			metrics.ConnectionsTotal.Inc()
			log.Printf("ws: connection %s opened", client.Id)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.Id]
			if ok {
				delete(h.clients, client.Id)
				close(client.send)
			}
			h.mu.Unlock()
			if !ok {
				continue
			}
			metrics.ConnectionsTotal.Dec()
			log.Printf("ws: connection %s closed", client.Id)

			if h.onClientUnregister != nil {
				if err := h.onClientUnregister(client); err != nil {
					log.Printf("OnClientUnregister error: %v", err)
				}
			}

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every connection's send channel and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Broadcast queues message on every open connection and returns how many
// accepted it. Connections with a full buffer are dropped.
func (h *Hub) Broadcast(message []byte) int {
	var slow []*UserClient
	sent := 0

	h.mu.RLock()
	for _, client := range h.clients {
		select {
		case client.send <- message:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	h.drop(slow)
	return sent
}

// SendToClient queues message for a single connection. It reports false when
// the connection is gone or too slow to keep up.
func (h *Hub) SendToClient(clientId string, message []byte) bool {
	h.mu.RLock()
	client, exists := h.clients[clientId]
	if !exists {
		h.mu.RUnlock()
		return false
	}
	select {
	case client.send <- message:
		h.mu.RUnlock()
		return true
	default:
		h.mu.RUnlock()
	}

	h.drop([]*UserClient{client})
	return false
}

// drop unregisters slow clients without blocking the caller, which may be
// running inside the unregister callback on the Run goroutine.
func (h *Hub) drop(clients []*UserClient) {
	for _, client := range clients {
		log.Printf("ws: send buffer full, dropping connection %s", client.Id)
		go h.UnregisterClient(client)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient adds the client before returning, so that sends for frames
// it reads next already find it.
func (h *Hub) RegisterClient(client *UserClient) {
	h.mu.Lock()
	select {
	case <-h.quit:
		h.mu.Unlock()
		return
	default:
	}
	h.clients[client.Id] = client
	h.mu.Unlock()

	select {
	case h.register <- client:
	case <-h.quit:
	}
}

func (h *Hub) UnregisterClient(client *UserClient) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *Hub) SetOnClientUnregister(callback func(client *UserClient) error) {
	h.onClientUnregister = callback
}
