// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package websocket pushes accepted detections to dashboard clients.
//
// The Hub is an ingest.Inserter, so it can be added as a fanout sink next
// to the store. Broadcasts never block ingestion: when the broadcast
// buffer or a client's send buffer is full the message or the client is
// dropped.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/platewatch/internal/eventbus"
	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// ErrBufferFull is returned by Insert when the detection could not be
// queued for broadcast.
var ErrBufferFull = errors.New("websocket: broadcast buffer full")

// Message types.
const (
	MessageTypeDetection = "detection"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
	// done is the running Serve context's Done channel.
	done       <-chan struct{}
}

// NewHub creates a hub. Serve must run for clients to be registered.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the hub until ctx is done, then closes every client.
//
// Lifecycle events are drained before broadcasts so a client registered
// before a broadcast always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.done = ctx.Done()
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.add(c)
			continue
		case c := <-h.Unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// String names the hub in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
}

// leave unregisters c unless the hub has already stopped.
func (h *Hub) leave(c *Client) {
	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()

	select {
	case h.Unregister <- c:
	case <-done:
	}
}

// sortedClients returns clients in ID order. The caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients drops clients whose send buffer is full.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	var dropped int
	for _, c := range h.sortedClients() {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			dropped++
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		metrics.WSClients.Set(float64(n))
		logging.Warn().Int("dropped", dropped).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	metrics.WSClients.Set(0)
	logging.Info().Int("clients_closed", len(clients)).Msg("websocket hub stopped")
}

// Broadcast queues a message for every client. It reports false when the
// broadcast buffer is full and the message was dropped.
func (h *Hub) Broadcast(msgType string, data interface{}) bool {
	select {
	case h.broadcast <- Message{Type: msgType, Data: data}:
		return true
	default:
		logging.Warn().Str("message_type", msgType).Msg("broadcast channel full, dropping message")
		return false
	}
}

// Insert broadcasts an accepted detection without its image. A full
// buffer is not an error for ingestion.
func (h *Hub) Insert(ctx context.Context, rec ingest.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.Broadcast(MessageTypeDetection, eventbus.EventFromRecord(rec)) {
		return ErrBufferFull
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
