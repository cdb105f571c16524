// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
)

const (
	kindAngle = "angle"
	kindCycle = "cycle"

	clientBuffer = 64
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // clinician tablet on the local network
	},
}

// Envelope is what websocket clients receive.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Hub keeps the latest payload of each kind and fans updates out to
// websocket clients. Slow clients lose messages rather than block MQTT.
type Hub struct {
	mu      sync.RWMutex
	latest  map[string]json.RawMessage
	clients map[chan Envelope]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		latest:  make(map[string]json.RawMessage),
		clients: make(map[chan Envelope]struct{}),
		logger:  logger,
	}
}

// Update stores payload as the latest value of kind and broadcasts it.
func (h *Hub) Update(kind string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%s payload is not JSON", kind)
	}
	env := Envelope{Kind: kind, Data: append(json.RawMessage(nil), payload...)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[kind] = env.Data
	for ch := range h.clients {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

// Latest returns the last payload of kind.
func (h *Hub) Latest(kind string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.latest[kind]
	return v, ok
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// join registers a client and returns the current latest values, in kind
// order, so the client starts from a full picture.
func (h *Hub) join() (chan Envelope, []Envelope) {
	ch := make(chan Envelope, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}

	kinds := make([]string, 0, len(h.latest))
	for k := range h.latest {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	snapshot := make([]Envelope, len(kinds))
	for i, k := range kinds {
		snapshot[i] = Envelope{Kind: k, Data: h.latest[k]}
	}
	return ch, snapshot
}

func (h *Hub) leave(ch chan Envelope) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Handler serves /api/angle, /api/cycle and the /ws stream.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/angle", h.serveLatest(kindAngle))
	mux.HandleFunc("/api/cycle", h.serveLatest(kindCycle))
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

func (h *Hub) serveLatest(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := h.Latest(kind)
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(v); err != nil {
			h.logger.Warn("http write error", zap.Error(err))
		}
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ch, snapshot := h.join()
	defer h.leave(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(env Envelope) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(env)
	}
	for _, env := range snapshot {
		if err := send(env); err != nil {
			return
		}
	}
	for {
		select {
		case <-done:
			return
		case env := <-ch:
			if err := send(env); err != nil {
				h.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

// RunWeb mirrors TOPIC_ANGLE and TOPIC_CYCLE to HTTP and websocket clients
// on WEB_SERVER_PORT until ctx is cancelled.
func RunWeb(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Get()
	hub := NewHub(logger)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	for topic, kind := range map[string]string{cfg.TopicAngle: kindAngle, cfg.TopicCycle: kindCycle} {
		err := subscribe(client, topic, func(payload []byte) {
			if err := hub.Update(kind, payload); err != nil {
				logger.Warn("MQTT payload dropped", zap.String("topic", topic), zap.Error(err))
			}
		}, logger)
		if err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("web server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
