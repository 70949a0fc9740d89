// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/platewatch/internal/ingest"
)

// startHub runs a hub and an upgrade endpoint. The returned URL is a ws:// URL.
func startHub(t *testing.T) (*Hub, string, context.CancelFunc, <-chan error) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn)
		hub.Register <- c
		c.Start()
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel, done
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestHub_InsertBroadcastsDetection(t *testing.T) {
	hub, url, _, _ := startHub(t)
	a := dial(t, hub, url, 1)
	b := dial(t, hub, url, 2)

	rec := ingest.Record{
		ID:         "rec-1",
		DeviceKey:  "SN-0042",
		Plate:      "AB12CD3456",
		Grammar:    "ten-mixed",
		Image:      []byte("jpeg"),
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := hub.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg["type"] != MessageTypeDetection {
			t.Errorf("type = %v, want %s", msg["type"], MessageTypeDetection)
		}
		data, ok := msg["data"].(map[string]interface{})
		if !ok {
			t.Fatalf("data = %T", msg["data"])
		}
		if data["plate"] != "AB12CD3456" || data["device_key"] != "SN-0042" {
			t.Errorf("data = %v", data)
		}
		if data["has_image"] != true {
			t.Errorf("has_image = %v, want true", data["has_image"])
		}
		if _, leaked := data["image"]; leaked {
			t.Error("image bytes must not be broadcast")
		}
	}
}

func TestHub_PingPong(t *testing.T) {
	hub, url, _, _ := startHub(t)
	conn := dial(t, hub, url, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg["type"] != MessageTypePong {
		t.Errorf("type = %v, want pong", msg["type"])
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, url, _, _ := startHub(t)
	conn := dial(t, hub, url, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d after disconnect", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, url, cancel, done := startHub(t)
	conn := dial(t, hub, url, 1)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after shutdown", hub.ClientCount())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestHub_BufferFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast(MessageTypeDetection, i) {
			t.Fatalf("Broadcast() %d dropped early", i)
		}
	}

	if hub.Broadcast(MessageTypeDetection, "overflow") {
		t.Error("Broadcast() should drop when the buffer is full")
	}
	err := hub.Insert(context.Background(), ingest.Record{ID: "x"})
	if !errors.Is(err, ErrBufferFull) {
		t.Errorf("Insert() error = %v, want ErrBufferFull", err)
	}
}

func TestHub_InsertCanceled(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := hub.Insert(ctx, ingest.Record{ID: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Insert() error = %v, want context.Canceled", err)
	}
}

func TestHub_String(t *testing.T) {
	if got := NewHub().String(); got != "websocket-hub" {
		t.Errorf("String() = %q", got)
	}
}
