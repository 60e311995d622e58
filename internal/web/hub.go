package web

import (
	"context"

	"github.com/gorilla/websocket"
)

// hub fans progress events out to connected websocket clients. Slow or
// dead clients are dropped rather than allowed to stall the pipeline.
type hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.unregister:
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

// send queues a message for broadcast, dropping it when the hub is backed
// up. Progress events are advisory; losing one is fine.
func (h *hub) send(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}
