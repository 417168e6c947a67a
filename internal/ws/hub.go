package ws

import (
	"errors"
	"sync"
)

// ErrHubBusy is returned when the broadcast queue is full and the message was dropped.
var ErrHubBusy = errors.New("ws: broadcast queue full")

// ErrHubClosed is returned after Stop.
var ErrHubClosed = errors.New("ws: hub closed")

const broadcastQueueSize = 256

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions keyed by channel (an organization ID).
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopOnce  sync.Once
}

// message couples payload with channel identifier.
type message struct {
	channel string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	channel string
	client  Subscriber
}

type countRequest struct {
	channel string
	reply   chan int
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, broadcastQueueSize),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.channel]; !ok {
				h.clients[sub.channel] = make(map[Subscriber]struct{})
			}
			h.clients[sub.channel][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.channel]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.channel)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.channel])
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.channel]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.channel)
				}
			}
		}
	}
}

// Register adds a client to a channel.
func (h *Hub) Register(channel string, client Subscriber) {
	select {
	case h.register <- subscription{channel: channel, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(channel string, client Subscriber) {
	select {
	case h.unreg <- subscription{channel: channel, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of channel without blocking.
func (h *Hub) Broadcast(channel string, payload []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- message{channel: channel, payload: payload}:
		return nil
	default:
		return ErrHubBusy
	}
}

// Subscribers reports how many clients are registered on channel.
func (h *Hub) Subscribers(channel string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{channel: channel, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Stop closes every client and terminates the hub loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}
