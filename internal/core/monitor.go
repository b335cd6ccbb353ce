package core

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const (
	clientQueue  = 64
	writeTimeout = time.Second
)

// Monitor serves live events over a websocket and the current robot state
// as JSON. It is an event sink; Publish never blocks the caller.
type Monitor struct {
	Addr string

	codec   parser.EventCodec
	state   func() any
	mu      sync.Mutex
	clients map[string]*wsClient
	server  *http.Server
	ln      net.Listener
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewMonitor constructs a Monitor listening on addr. state is called for
// every /api/state request.
func NewMonitor(addr string, state func() any) *Monitor {
	return &Monitor{
		Addr:    addr,
		codec:   parser.NewJSONParser(),
		state:   state,
		clients: map[string]*wsClient{},
	}
}

// Handler returns the monitor routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc("/api/state", m.handleState)
	return mux
}

// Start binds Addr and serves in the background.
func (m *Monitor) Start() error {
	ln, err := net.Listen("tcp", m.Addr)
	if err != nil {
		return err
	}
	m.ln = ln
	m.server = &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	log.Printf("[monitor] listening on %s", ln.Addr())
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[monitor] serve: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address once started.
func (m *Monitor) ListenAddr() string {
	if m.ln == nil {
		return m.Addr
	}
	return m.ln.Addr().String()
}

// Stop shuts down the HTTP server and disconnects every client.
func (m *Monitor) Stop() {
	if m.server != nil {
		_ = m.server.Close()
	}
	m.mu.Lock()
	for id, c := range m.clients {
		close(c.send)
		delete(m.clients, id)
	}
	m.mu.Unlock()
}

// Clients returns the number of connected websocket clients.
func (m *Monitor) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Publish encodes e and queues it for every client. Slow clients miss
// events rather than stall the arbiter.
func (m *Monitor) Publish(e model.Event) {
	b, err := m.codec.EncodeEvent(e)
	if err != nil {
		log.Printf("[monitor] encode event: %v", err)
		return
	}
	m.broadcast(b)
}

func (m *Monitor) broadcast(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (m *Monitor) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var v any
	if m.state != nil {
		v = m.state()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[monitor] write state: %v", err)
	}
}

// handleWS upgrades HTTP to websocket and registers the client for broadcasts.
func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientQueue)}
	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()
	log.Printf("[monitor] client %s connected from %s", c.id, r.RemoteAddr)

	go m.writeLoop(c)
	go func() {
		defer m.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Monitor) writeLoop(c *wsClient) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			log.Printf("[monitor] warning: failed to close websocket: %v", err)
		}
	}()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.remove(c)
			return
		}
	}
}

func (m *Monitor) remove(c *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.id]; ok {
		close(c.send)
		delete(m.clients, c.id)
		log.Printf("[monitor] client %s disconnected", c.id)
	}
}
