package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loanledger/internal/domain/notification"
)

func dialHub(t *testing.T, hub *WSHub, accountID string) (*websocket.Conn, func()) {
	t.Helper()
	subIDCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subID, _, err := hub.Subscribe(w, r, accountID)
		if err != nil {
			t.Errorf("subscribe: %v", err)
			return
		}
		subIDCh <- subID
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	subID := <-subIDCh
	return client, func() {
		hub.Unsubscribe(accountID, subID)
		_ = client.Close()
		srv.Close()
	}
}

func TestPush_NoSubscriber(t *testing.T) {
	hub := NewWSHub()
	err := hub.Push(context.Background(), "acct-1", &notification.Notification{Title: "t"})
	if !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber, got %v", err)
	}
}

func TestPush_DeliversEventFrame(t *testing.T) {
	hub := NewWSHub()
	client, done := dialHub(t, hub, "acct-1")
	defer done()

	if n := hub.SubscriptionCount("acct-1"); n != 1 {
		t.Fatalf("subscription count = %d, want 1", n)
	}

	want := &notification.Notification{AccountID: "acct-1", Type: notification.TypePaymentReceived, Title: "Payment received"}
	if err := hub.Push(context.Background(), "acct-1", want); err != nil {
		t.Fatalf("push: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame struct {
		Event string                     `json:"event"`
		Data  *notification.Notification `json:"data"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != "notification" || frame.Data.Title != want.Title {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestUnsubscribe_DropsSubscription(t *testing.T) {
	hub := NewWSHub()
	_, done := dialHub(t, hub, "acct-1")
	done()

	if n := hub.SubscriptionCount("acct-1"); n != 0 {
		t.Fatalf("subscription count after unsubscribe = %d, want 0", n)
	}
	if err := hub.PushEvent("acct-1", "notification", nil); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber after unsubscribe, got %v", err)
	}
}

func TestPushEvent_FansOutToEverySubscription(t *testing.T) {
	hub := NewWSHub()
	c1, done1 := dialHub(t, hub, "acct-1")
	defer done1()
	c2, done2 := dialHub(t, hub, "acct-1")
	defer done2()

	if n := hub.SubscriptionCount("acct-1"); n != 2 {
		t.Fatalf("subscription count = %d, want 2", n)
	}
	if err := hub.PushEvent("acct-1", "notifications:all-read", nil); err != nil {
		t.Fatalf("push: %v", err)
	}
	for i, c := range []*websocket.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := c.ReadMessage(); err != nil {
			t.Fatalf("subscriber %d read: %v", i, err)
		}
	}
}
