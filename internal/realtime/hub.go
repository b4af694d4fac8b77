// Package realtime pushes ride events and driver positions to connected
// passenger and driver devices over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/observability"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Message is the frame written to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ErrHubClosed is returned by Serve after Close.
var ErrHubClosed = errors.New("realtime hub closed")

type client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// watch is the ride a driver is serving and the passenger following it.
type watch struct {
	rideID      uuid.UUID
	passengerID uuid.UUID
}

// Hub tracks connected devices by user. A device is reachable when its user
// is a recipient of a match event, or is the passenger of a ride whose
// driver reports a position.
type Hub struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]map[*client]struct{}
	watchers map[uuid.UUID]watch // keyed by driver
	closed   bool

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[uuid.UUID]map[*client]struct{}),
		watchers: make(map[uuid.UUID]watch),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve upgrades the request and keeps the connection registered for userID
// until the peer goes away. It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.Close()
		return ErrHubClosed
	}
	h.logger.Debug("realtime client connected", zap.String("user_id", userID.String()))

	go h.writePump(c)
	h.readPump(c)
	return nil
}

// Connected returns how many devices userID has open.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// PublishMatchEvent delivers evt to every recipient's devices.
func (h *Hub) PublishMatchEvent(_ context.Context, evt domain.MatchEvent) error {
	h.track(evt)
	frame, err := json.Marshal(Message{Type: string(evt.Type), Data: evt})
	if err != nil {
		return err
	}
	for _, userID := range evt.Recipients {
		h.deliver(userID, frame)
	}
	return nil
}

// PublishDriverLocation forwards a driver's position to the passenger of the
// ride the driver is serving. The frame carries that ride's id.
func (h *Hub) PublishDriverLocation(_ context.Context, loc domain.DriverLocation) error {
	h.mu.RLock()
	w, ok := h.watchers[loc.DriverID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	rideID := w.rideID
	loc.RideID = &rideID
	frame, err := json.Marshal(Message{Type: "driver.location", Data: loc})
	if err != nil {
		return err
	}
	h.deliver(w.passengerID, frame)
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

// track starts following a driver once bound to a ride and stops when that
// ride ends. Personal rides have nobody to follow.
func (h *Hub) track(evt domain.MatchEvent) {
	if evt.DriverID == nil {
		return
	}
	driverID := *evt.DriverID
	h.mu.Lock()
	defer h.mu.Unlock()
	switch evt.Type {
	case domain.MatchEventAccepted, domain.MatchEventArrived, domain.MatchEventStarted:
		if evt.PassengerID != uuid.Nil && evt.PassengerID != driverID {
			h.watchers[driverID] = watch{rideID: evt.RideID, passengerID: evt.PassengerID}
		}
	case domain.MatchEventCompleted, domain.MatchEventCancelled:
		if w, ok := h.watchers[driverID]; ok && w.rideID == evt.RideID {
			delete(h.watchers, driverID)
		}
	}
}

func (h *Hub) deliver(userID uuid.UUID, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for c := range h.clients[userID] {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: drop the frame rather than stall the publisher.
			observability.SideChannelFailures.WithLabelValues("websocket").Inc()
			h.logger.Warn("realtime client buffer full, dropping frame",
				zap.String("user_id", userID.String()),
			)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	observability.WebsocketClients.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.close()
	observability.WebsocketClients.Dec()
}

// readPump discards inbound frames; it exists to process pongs and notice
// the peer closing.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime client read error",
					zap.String("user_id", c.userID.String()),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
