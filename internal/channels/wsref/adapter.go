// Package wsref implements a single generic websocket Channel: the D1
// reference Channel this module ships so the Orchestrator's Channel
// contract has at least one real, exercised implementation beyond its
// interface definition. Concrete chat-platform adapters are out of scope
// (spec §1); a browser or CLI client speaking this module's own wire
// protocol is not.
package wsref

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvia/openvia/internal/channels"
	"github.com/openvia/openvia/pkg/models"
)

const (
	maxPayloadBytes = 1 << 20
	pongWait        = 45 * time.Second
	pingInterval    = 15 * time.Second
	writeWait       = 10 * time.Second
	maxReplyChunk   = 4000
)

// frame is the adapter's wire envelope. An inbound frame carries one user
// message; an outbound frame carries one reply chunk or a permission
// prompt.
type frame struct {
	Type      string `json:"type"` // "message", "reply", "permission_request", "error"
	UserID    string `json:"userId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Text      string `json:"text,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

// Adapter is a Channel backed by a long-lived websocket connection per
// client. Each connected socket is its own (userID, channelID) session;
// the adapter never multiplexes users over one socket.
type Adapter struct {
	id       string
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*clientConn // keyed by channelID

	currentHandler handlerSlot

	runMu  sync.RWMutex
	runCtx context.Context
}

type handlerSlot struct {
	mu sync.RWMutex
	fn channels.MessageHandler
}

type clientConn struct {
	userID    string
	channelID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
}

// New creates a websocket reference Channel listening on addr.
func New(id, addr string) *Adapter {
	a := &Adapter{
		id:    id,
		conns: make(map[string]*clientConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleUpgrade)
	a.server = &http.Server{Addr: addr, Handler: mux}
	return a
}

// ID identifies this channel instance to the Permission Bridge and
// Registry.
func (a *Adapter) ID() string { return a.id }

func (a *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("wsref: upgrade failed", "error", err)
		return
	}
	a.currentHandler.mu.RLock()
	handler := a.currentHandler.fn
	a.currentHandler.mu.RUnlock()
	if handler == nil {
		conn.Close()
		return
	}
	a.runMu.RLock()
	ctx := a.runCtx
	a.runMu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go a.serveConn(ctx, conn, handler)
}

// Start begins listening on the adapter's configured address. Every
// websocket connection that arrives becomes one logical session: its first
// frame must carry userId/channelId, and every subsequent text frame is
// delivered to handler.
func (a *Adapter) Start(ctx context.Context, handler channels.MessageHandler) error {
	a.currentHandler.mu.Lock()
	a.currentHandler.fn = handler
	a.currentHandler.mu.Unlock()

	a.runMu.Lock()
	a.runCtx = ctx
	a.runMu.Unlock()

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("wsref: server exited", "error", err)
		}
	}()
	return nil
}

// Stop closes every connected socket and shuts the HTTP server down.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	for _, c := range a.conns {
		c.conn.Close()
	}
	a.conns = make(map[string]*clientConn)
	a.mu.Unlock()
	return a.server.Shutdown(ctx)
}

// HandlePermissionRequest satisfies channels.PermissionRequester: it pushes
// a permission_request frame to the socket owned by req.Owner.ChatID, if
// still connected.
func (a *Adapter) HandlePermissionRequest(ctx context.Context, req models.PendingPermission) error {
	a.mu.Lock()
	c, ok := a.conns[req.Owner.ChatID]
	a.mu.Unlock()
	if !ok {
		return errors.New("wsref: no connection for channel " + req.Owner.ChatID)
	}
	return c.writeFrame(frame{
		Type:      "permission_request",
		RequestID: req.ID,
		Prompt:    req.Prompt,
		UserID:    req.Owner.UserID,
		ChannelID: req.Owner.ChatID,
	})
}

func (a *Adapter) serveConn(ctx context.Context, conn *websocket.Conn, handler channels.MessageHandler) {
	conn.SetReadLimit(maxPayloadBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var c *clientConn
	defer func() {
		if c != nil {
			a.mu.Lock()
			delete(a.conns, c.channelID)
			a.mu.Unlock()
		}
		conn.Close()
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if c == nil {
					continue
				}
				if err := c.writeControl(websocket.PingMessage); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Type != "message" {
			continue
		}
		if c == nil {
			c = &clientConn{userID: f.UserID, channelID: f.ChannelID, conn: conn}
			a.mu.Lock()
			a.conns[f.ChannelID] = c
			a.mu.Unlock()
		}

		block := []models.ContentBlock{{Kind: models.BlockText, Text: f.Text}}
		reply := func(ctx context.Context, text string) error {
			return c.writeFrame(frame{Type: "reply", UserID: f.UserID, ChannelID: f.ChannelID, Text: chunkReply(text)})
		}
		if err := handler(ctx, block, f.UserID, f.ChannelID, reply); err != nil {
			c.writeFrame(frame{Type: "error", Text: err.Error()})
		}
	}
}

func chunkReply(text string) string {
	if len(text) <= maxReplyChunk {
		return text
	}
	return text[:maxReplyChunk]
}

func (c *clientConn) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) writeControl(kind int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(kind, nil, time.Now().Add(writeWait))
}
