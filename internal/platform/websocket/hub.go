// Package websocket pushes queue change notifications to connected staff
// dashboards. Clients subscribe to facility topics and re-fetch the queue
// when an event arrives, so the queue ordering contract stays server side.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medroute/medroute/internal/platform/auth"
)

const (
	EventRequestCreated  = "request.created"
	EventRequestResolved = "request.resolved"

	topicPrefix = "facility/"
	// AllFacilitiesTopic receives every event regardless of facility.
	AllFacilitiesTopic = "facility/*"
)

// FacilityTopic is the topic events for one facility are published on.
func FacilityTopic(facilityID string) string {
	return topicPrefix + facilityID
}

// Event is a queue change notification. It carries identifiers only; the
// request body is fetched through the authenticated REST API.
type Event struct {
	Type        string    `json:"type"`
	Topic       string    `json:"topic"`
	RequestID   string    `json:"requestId"`
	FacilityID  string    `json:"facilityId"`
	Criticality string    `json:"criticality,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	conn   Conn
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws-hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
// Calling it twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Broadcast sends event to subscribers of topic and, for facility topics, to
// subscribers of AllFacilitiesTopic. A client subscribed to both receives
// the event once.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]struct{})
	deliver := func(t string) {
		for client := range h.clients[t] {
			if _, done := sent[client]; done {
				continue
			}
			sent[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn().Str("client_id", client.ID).Str("topic", t).Msg("client buffer full, dropping event")
			}
		}
	}

	deliver(topic)
	if strings.HasPrefix(topic, topicPrefix) && topic != AllFacilitiesTopic {
		deliver(AllFacilitiesTopic)
	}
}

// Publish delivers to local clients. It satisfies EventPublisher for
// single-replica deployments.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Topic == "" {
		event.Topic = FacilityTopic(event.FacilityID)
	}
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// CanSubscribe reports whether the identity in ctx may receive events for
// topic. Admins may subscribe to anything; staff only to their own
// facility.
func CanSubscribe(ctx context.Context, topic string) bool {
	if auth.IsAdmin(ctx) {
		return true
	}
	fid := auth.FacilityIDFromContext(ctx)
	return fid != "" && topic == FacilityTopic(fid)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// WebSocketHandler upgrades HTTP connections and routes client messages.
type WebSocketHandler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	showAll  bool
}

// NewWebSocketHandler accepts handshakes from allowedOrigins; an empty list
// or "*" accepts any origin.
func NewWebSocketHandler(hub *Hub, allowedOrigins ...string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// SetShowAll mirrors the queue's show-all switch: when on, staff are
// subscribed to every facility's events instead of only their own.
func (wsh *WebSocketHandler) SetShowAll(on bool) {
	wsh.showAll = on
}

func (wsh *WebSocketHandler) canSubscribe(ctx context.Context, topic string) bool {
	if wsh.showAll && topic == AllFacilitiesTopic && auth.HasRole(ctx, auth.RoleStaff) {
		return true
	}
	return CanSubscribe(ctx, topic)
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect, auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
}

// HandleConnect upgrades the connection and subscribes staff to their own
// facility topic straight away, or to every facility under show-all.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	topics := []string{}
	if wsh.showAll && !auth.IsAdmin(ctx) && auth.HasRole(ctx, auth.RoleStaff) {
		topics = append(topics, AllFacilitiesTopic)
	} else if fid := auth.FacilityIDFromContext(ctx); fid != "" {
		topics = append(topics, FacilityTopic(fid))
	}

	client := &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, 256),
		conn:   &gorillaConnAdapter{ws},
	}
	wsh.hub.Register(client)

	// ctx is detached from the request lifecycle once the handler returns,
	// so only the identity values are read from it later.
	identity := context.WithoutCancel(ctx)

	go wsh.writePump(client, ws)
	go wsh.readPump(identity, client, ws)
	return nil
}

func (wsh *WebSocketHandler) readPump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessage)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.process(ctx, client, msg)
	}
}

// process applies a client message, dropping topics the caller may not see.
func (wsh *WebSocketHandler) process(ctx context.Context, client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		permitted := make([]string, 0, len(msg.Topics))
		for _, t := range msg.Topics {
			if wsh.canSubscribe(ctx, t) {
				permitted = append(permitted, t)
			}
		}
		wsh.hub.Subscribe(client, permitted)
	case "unsubscribe":
		wsh.hub.Unsubscribe(client, msg.Topics)
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
