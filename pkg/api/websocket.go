package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

// Channel names clients can subscribe to
const (
	ChannelEvents  = "events"
	ChannelOrders  = "orders"
	ChannelTrades  = "trades"
	accountChannel = "account:"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AccountChannel is the per-account channel name for addr
func AccountChannel(addr common.Address) string {
	return accountChannel + addr.Hex()
}

// channelsFor lists every channel an event is routed to
func channelsFor(ev events.Event) []string {
	chans := []string{ChannelEvents}
	if ev.IsOrder() {
		chans = append(chans, ChannelOrders)
	}
	switch ev.Kind {
	case events.KindOrderFilled, events.KindTokensPurchased, events.KindTokensSold:
		chans = append(chans, ChannelTrades)
	}
	for _, a := range ev.Accounts() {
		chans = append(chans, AccountChannel(a))
	}
	return chans
}

// normalizeChannel maps account channels to checksummed addresses so
// subscriptions match regardless of address case
func normalizeChannel(ch string) (string, bool) {
	switch ch {
	case ChannelEvents, ChannelOrders, ChannelTrades:
		return ch, true
	}
	if rest, ok := strings.CutPrefix(ch, accountChannel); ok && common.IsHexAddress(rest) {
		return AccountChannel(common.HexToAddress(rest)), true
	}
	return "", false
}

// Hub maintains active WebSocket connections and fans events out to them.
// It implements events.Sink.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu  sync.RWMutex
	log *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Name() string { return "websocket" }

// Run handles client registration until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_connected", "client", c.id, "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_disconnected", "client", c.id, "total", n)
		}
	}
}

// Publish delivers ev once to every client subscribed to any of its channels.
// Slow clients whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	chans := channelsFor(ev)
	payloads := make(map[string][]byte, len(chans))

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		ch, ok := c.firstSubscribed(chans)
		if !ok {
			continue
		}
		msg, ok := payloads[ch]
		if !ok {
			var err error
			if msg, err = json.Marshal(WSMessage{Channel: ch, Event: ev}); err != nil {
				return err
			}
			payloads[ch] = msg
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warnw("ws_client_lagging", "client", c.id, "seq", ev.Seq)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) firstSubscribed(chans []string) (string, bool) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range chans {
		if c.subscriptions[ch] {
			return ch, true
		}
	}
	return "", false
}

func (c *Client) Subscribe(channel string) bool {
	ch, ok := normalizeChannel(channel)
	if !ok {
		return false
	}
	c.subsMu.Lock()
	c.subscriptions[ch] = true
	c.subsMu.Unlock()
	return true
}

func (c *Client) Unsubscribe(channel string) {
	ch, ok := normalizeChannel(channel)
	if !ok {
		return
	}
	c.subsMu.Lock()
	delete(c.subscriptions, ch)
	c.subsMu.Unlock()
}

// readPump applies subscription requests until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.log.Debugw("ws_bad_message", "client", c.id, "err", err)
			continue
		}

		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				if !c.Subscribe(ch) {
					c.hub.log.Debugw("ws_unknown_channel", "client", c.id, "channel", ch)
				}
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				c.Unsubscribe(ch)
			}
		default:
			c.hub.log.Debugw("ws_unknown_op", "client", c.id, "op", req.Op)
		}
	}
}

// writePump sends queued messages, one event per frame, and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
