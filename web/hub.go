// Package web streams navigation solutions to browser clients over
// websockets.
package web

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Hub broadcasts messages to every connected client.
type Hub struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	clients map[*client]bool
}

func NewHub() *Hub {
	return &Hub{
		forward: make(chan []byte, 64),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
	}
}

// Run services joins, leaves and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.join:
			h.clients[c] = true
		case c := <-h.leave:
			delete(h.clients, c)
			close(c.send)
		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client; skip this frame
				}
			}
		}
	}
}

// Broadcast queues one message for every client, dropping it when the
// hub itself is saturated.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.forward <- msg:
	default:
	}
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("web: upgrade failed: %v", err)
		return
	}
	c := &client{socket: socket, send: make(chan []byte, messageBufferSize), hub: h}
	h.join <- c
	defer func() { h.leave <- c }()
	go c.write()
	c.read()
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
	hub    *Hub
}

func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
