package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/redisx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendQueueSize = 64

// Conn is one live socket session. Unbound until the client
// authenticates; only bound connections participate in fanout. All
// writes go through the send queue so the socket has a single writer.
type Conn struct {
	ID  string
	Uid string // set by Bind after authentication

	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Send queues a payload, dropping it if the client cannot keep up. A
// slow consumer must not stall fanout to everyone else.
func (c *Conn) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		logger.Warn("realtime: send queue full, dropping frame",
			zap.String("conn", c.ID), zap.String("uid", c.Uid))
		return false
	}
}

// writer owns the socket's write side entirely; nothing else may call
// WriteMessage. It closes the socket itself on exit, after draining
// whatever was queued before close.
func (c *Conn) writer() {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					return
				}
			}
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("realtime: write failed",
					zap.String("conn", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ConnManager is the process-local uid -> connections registry. A user
// may hold many concurrent connections (multi-device). Mutated only on
// connect, authenticate and disconnect.
type ConnManager struct {
	mu    sync.RWMutex
	byID  map[string]*Conn
	byUid map[string]map[string]*Conn

	presence *redisx.Presence // optional
}

func NewConnManager(presence *redisx.Presence) *ConnManager {
	return &ConnManager{
		byID:     make(map[string]*Conn),
		byUid:    make(map[string]map[string]*Conn),
		presence: presence,
	}
}

// Add registers a fresh, not yet authenticated connection and starts
// its writer.
func (m *ConnManager) Add(ws *websocket.Conn) *Conn {
	conn := &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.byID[conn.ID] = conn
	m.mu.Unlock()
	go conn.writer()
	return conn
}

// Bind attaches an authenticated uid to the connection and marks
// presence.
func (m *ConnManager) Bind(conn *Conn, uid string) {
	m.mu.Lock()
	conn.Uid = uid
	if m.byUid[uid] == nil {
		m.byUid[uid] = make(map[string]*Conn)
	}
	m.byUid[uid][conn.ID] = conn
	m.mu.Unlock()

	m.markOnline(uid)
}

// Remove drops the connection; the uid's presence clears with its last
// connection.
func (m *ConnManager) Remove(conn *Conn) {
	m.mu.Lock()
	delete(m.byID, conn.ID)
	lastForUid := false
	if conn.Uid != "" {
		if conns := m.byUid[conn.Uid]; conns != nil {
			delete(conns, conn.ID)
			if len(conns) == 0 {
				delete(m.byUid, conn.Uid)
				lastForUid = true
			}
		}
	}
	m.mu.Unlock()

	conn.close()
	if lastForUid {
		m.markOffline(conn.Uid)
	}
}

// SendToUid queues data on every live connection of uid and reports how
// many took it.
func (m *ConnManager) SendToUid(uid string, data []byte) int {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.byUid[uid]))
	for _, c := range m.byUid[uid] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	n := 0
	for _, c := range conns {
		if c.Send(data) {
			n++
		}
	}
	return n
}

// HasConnections reports whether uid has at least one bound connection
// on this node.
func (m *ConnManager) HasConnections(uid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUid[uid]) > 0
}

// IsOnline checks the local registry first, then the shared presence
// record for connections held by other nodes.
func (m *ConnManager) IsOnline(ctx context.Context, uid string) (bool, error) {
	if m.HasConnections(uid) {
		return true, nil
	}
	if m.presence == nil {
		return false, nil
	}
	return m.presence.IsOnline(ctx, uid)
}

// Refresh extends the presence TTL; called on heartbeat.
func (m *ConnManager) Refresh(uid string) {
	if m.presence == nil || uid == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.presence.Refresh(ctx, uid); err != nil {
		logger.Debug("realtime: presence refresh", zap.String("uid", uid), zap.Error(err))
	}
}

func (m *ConnManager) markOnline(uid string) {
	if m.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.presence.Online(ctx, uid); err != nil {
		logger.Debug("realtime: presence online", zap.String("uid", uid), zap.Error(err))
	}
}

func (m *ConnManager) markOffline(uid string) {
	if m.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.presence.Offline(ctx, uid); err != nil {
		logger.Debug("realtime: presence offline", zap.String("uid", uid), zap.Error(err))
	}
}

// Close shuts every connection down; used on process exit.
func (m *ConnManager) Close() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.byID))
	for _, c := range m.byID {
		conns = append(conns, c)
	}
	m.byID = make(map[string]*Conn)
	m.byUid = make(map[string]map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
