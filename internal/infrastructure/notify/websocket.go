// Package notify holds the live-transport and presence implementations the
// notify engine depends on through its narrow Pusher/Presence interfaces:
// a gorilla/websocket hub for delivery and expiring per-account Redis keys
// for presence.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"loanledger/internal/domain/notification"
)

// ErrNoSubscriber is returned by Push when the account holds no live
// subscription; callers treat it as "offline", not as a delivery failure.
var ErrNoSubscriber = errors.New("notify: no live subscription")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WSHub tracks live websocket subscriptions per account and implements
// notify.Pusher. An account may hold several subscriptions at once (one per
// tab or device); Push fans the payload out to all of them.
type WSHub struct {
	mu   sync.Mutex
	subs map[string]map[string]*websocket.Conn // accountID -> subscriptionID -> conn
}

func NewWSHub() *WSHub {
	return &WSHub{subs: make(map[string]map[string]*websocket.Conn)}
}

// Subscribe promotes an HTTP request to a websocket connection for
// accountID, returning the new subscription's id alongside the connection.
func (h *WSHub) Subscribe(w http.ResponseWriter, r *http.Request, accountID string) (string, *websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", nil, err
	}
	subID := uuid.NewString()
	h.mu.Lock()
	if h.subs[accountID] == nil {
		h.subs[accountID] = make(map[string]*websocket.Conn)
	}
	h.subs[accountID][subID] = conn
	h.mu.Unlock()
	return subID, conn, nil
}

// Unsubscribe drops one subscription and closes its connection, called once
// the stream's read loop exits.
func (h *WSHub) Unsubscribe(accountID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.subs[accountID]
	if conn, ok := conns[subID]; ok {
		_ = conn.Close()
		delete(conns, subID)
	}
	if len(conns) == 0 {
		delete(h.subs, accountID)
	}
}

// SubscriptionCount reports how many live subscriptions accountID holds.
func (h *WSHub) SubscriptionCount(accountID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[accountID])
}

// Push implements notify.Pusher.
func (h *WSHub) Push(ctx context.Context, accountID string, n *notification.Notification) error {
	return h.PushEvent(accountID, "notification", n)
}

// PushEvent fans an event frame out to every live subscription of
// accountID. A write error drops the offending subscription; delivery to at
// least one subscriber counts as success.
func (h *WSHub) PushEvent(accountID, name string, data any) error {
	payload, err := json.Marshal(event{Event: name, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.subs[accountID]
	delivered := false
	for subID, conn := range conns {
		if werr := conn.WriteMessage(websocket.TextMessage, payload); werr != nil {
			_ = conn.Close()
			delete(conns, subID)
			continue
		}
		delivered = true
	}
	if !delivered {
		return ErrNoSubscriber
	}
	return nil
}
