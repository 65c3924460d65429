package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/storage/redis"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512

	MessageSnapshot = "snapshot"
	MessageUpdate   = "update"
)

// Message is what a connected client receives: the full portfolio view, either
// on connect or after a change.
type Message struct {
	Type      string               `json:"type"`
	Op        string               `json:"op,omitempty"`
	Portfolio models.PortfolioView `json:"portfolio"`
	Warning   string               `json:"warning,omitempty"`
}

type Client struct {
	Manager *Manager
	Conn    *websocket.Conn
	UserID  uuid.UUID
	Send    chan []byte
}

func NewClient(manager *Manager, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		Manager: manager,
		Conn:    conn,
		UserID:  userID,
		Send:    make(chan []byte, 256),
	}
}

// Manager fans portfolio events from redis out to every open connection of the
// affected user. One redis channel is followed per user with at least one
// connection.
type Manager struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	mu         sync.RWMutex
	register   chan registration
	unregister chan *Client
	done       chan struct{}
	log        *slog.Logger
	subscriber *redis.Subscriber
}

func NewManager(log *slog.Logger, subscriber *redis.Subscriber) *Manager {
	return &Manager{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan registration),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		subscriber: subscriber,
	}
}

func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	go m.listenToRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Manager run loop stopping...")
			m.closeAll()
			return
		case r := <-m.register:
			m.registerClient(ctx, r.client)
			close(r.done)
		case client := <-m.unregister:
			m.unregisterClient(ctx, client)
		}
	}
}

func (m *Manager) listenToRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Redis listener stopping...")
			return
		case msg, ok := <-m.subscriber.Messages:
			if !ok {
				m.log.Warn("manager redis subscriber channel closed")
				return
			}
			m.processRedisMessage(msg)
		}
	}
}

type registration struct {
	client *Client
	done   chan struct{}
}

// Register returns once the client is listed and its user's redis channel is
// subscribed, so every event published afterwards reaches it.
func (m *Manager) Register(client *Client) {
	r := registration{client: client, done: make(chan struct{})}
	select {
	case m.register <- r:
	case <-m.done:
		return
	}

	select {
	case <-r.done:
	case <-m.done:
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Connections returns the number of open connections of a user.
func (m *Manager) Connections(userID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

func (m *Manager) registerClient(ctx context.Context, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.clients[client.UserID] = conns

		channel := redis.PortfolioChannel(client.UserID.String())
		if err := m.subscriber.Subscribe(ctx, channel); err != nil {
			m.log.Error("manager: could not subscribe to portfolio channel", "channel", channel, "error", err)
		}
	}

	conns[client] = struct{}{}
	m.log.Info("new client registered", "userID", client.UserID, "connections", len(conns))
}

func (m *Manager) unregisterClient(ctx context.Context, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}

	delete(conns, client)
	close(client.Send)
	m.log.Info("client unregistered", "userID", client.UserID)

	if len(conns) == 0 {
		delete(m.clients, client.UserID)
		if err := m.subscriber.Unsubscribe(ctx, redis.PortfolioChannel(client.UserID.String())); err != nil {
			m.log.Error("manager: failed to unsubscribe from redis", "userID", client.UserID, "error", err)
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, conns := range m.clients {
		for client := range conns {
			close(client.Send)
		}
		delete(m.clients, userID)
	}
}

func (m *Manager) processRedisMessage(msg redis.Message) {
	var event models.PortfolioEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		m.log.Error("failed to parse portfolio event from redis", "error", err, "channel", msg.Channel)
		return
	}

	if !strings.HasSuffix(msg.Channel, event.UserID.String()) {
		m.log.Warn("portfolio event on a foreign channel, dropping", "channel", msg.Channel, "userID", event.UserID)
		return
	}

	payload, err := json.Marshal(Message{Type: MessageUpdate, Op: event.Op, Portfolio: event.Portfolio})
	if err != nil {
		m.log.Error("failed to marshal portfolio view", "error", err, "userID", event.UserID)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.clients[event.UserID] {
		select {
		case client.Send <- payload:
		default:
			m.log.Warn("client send channel is full, dropping message", "userID", event.UserID)
		}
	}
}

var errNotRegistered = errors.New("client is not registered")

// SendSnapshot queues the current portfolio for a registered client, ahead of
// any update that arrives later.
func (m *Manager) SendSnapshot(client *Client, view models.PortfolioView, warning string) error {
	payload, err := json.Marshal(Message{Type: MessageSnapshot, Portfolio: view, Warning: warning})
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.clients[client.UserID][client]; !ok {
		return errNotRegistered
	}

	select {
	case client.Send <- payload:
		return nil
	default:
		return errors.New("client send channel is full")
	}
}

func (c *Client) Writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Manager.log.Warn("failed to write message to client", "userID", c.UserID)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Reader() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.log.Warn("unexpected close error", "userID", c.UserID, "error", err)
			}
			break
		}
	}
}
