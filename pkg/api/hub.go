package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// progressHub fans out task progress-delta strings to any number of
// WebSocket subscribers, grounded on the teacher's
// pkg/events.ConnectionManager (connection registry + channel-keyed
// subscriber sets + a guarding mutex independent of any session lock, per
// §5's explicit lock-ordering note), simplified to this domain's single
// progress-topic-per-task shape: there is no catchup query (the Sink
// records no steps, so a client that connects late misses the earlier
// ones; the task's current status stays readable via REST) and no
// client-to-server message protocol — a subscriber opens the socket and
// only ever reads.
type progressHub struct {
	mu          sync.RWMutex
	subscribers map[int]map[string]*progressConn

	writeTimeout time.Duration
}

type progressConn struct {
	id   string
	conn *websocket.Conn
	ctx  context.Context
}

func newProgressHub(writeTimeout time.Duration) *progressHub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &progressHub{
		subscribers:  make(map[int]map[string]*progressConn),
		writeTimeout: writeTimeout,
	}
}

// serve registers conn as a subscriber for taskID and blocks, reading (and
// discarding) client frames only to detect socket closure, until the
// connection closes.
func (h *progressHub) serve(ctx context.Context, taskID int, conn *websocket.Conn) {
	pc := &progressConn{id: uuid.New().String(), conn: conn, ctx: ctx}

	h.mu.Lock()
	if h.subscribers[taskID] == nil {
		h.subscribers[taskID] = make(map[string]*progressConn)
	}
	h.subscribers[taskID][pc.id] = pc
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers[taskID], pc.id)
		if len(h.subscribers[taskID]) == 0 {
			delete(h.subscribers, taskID)
		}
		h.mu.Unlock()
	}()

	h.send(pc, map[string]any{"type": "connection.established", "task_id": taskID})

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// broadcast sends a step-delta (or a terminal status message) to every
// subscriber of taskID. Send failures are logged, not propagated — a slow
// or dead subscriber must never block task progress itself.
func (h *progressHub) broadcast(taskID int, msg map[string]any) {
	h.mu.RLock()
	conns := make([]*progressConn, 0, len(h.subscribers[taskID]))
	for _, c := range h.subscribers[taskID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.send(c, msg)
	}
}

func (h *progressHub) send(pc *progressConn, v map[string]any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(pc.ctx, h.writeTimeout)
	defer cancel()
	if err := pc.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("api: progress hub: write failed", "connection_id", pc.id, "error", err)
	}
}

// subscriberCount reports the number of live subscribers for taskID; tests
// in this package poll it instead of sleeping.
func (h *progressHub) subscriberCount(taskID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[taskID])
}
