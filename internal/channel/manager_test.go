package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// dialTestChannel spins up a server that registers the accepted socket
// under sessionID and returns the client side of the connection.
func dialTestChannel(t *testing.T, m *Manager, sessionID string) *websocket.Conn {
	t.Helper()

	connected := make(chan struct{})
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		m.Connect(sessionID, ws)
		close(connected)
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close(websocket.StatusNormalClosure, "test done")
	})

	<-connected
	return client
}

func TestSendWithoutConnectionReturnsFalse(t *testing.T) {
	m := NewManager()
	if m.Send(context.Background(), "nope", Completed("done")) {
		t.Error("Send should return false without a connection")
	}
}

func TestSendDeliversEvent(t *testing.T) {
	m := NewManager()
	client := dialTestChannel(t, m, "s1")

	if !m.Send(context.Background(), "s1", ApplyEdit("<html></html>", "first edit", 1)) {
		t.Fatal("Send returned false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got Event
	if err := wsjson.Read(ctx, client, &got); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if got.Type != "apply_edit" || got.HTML != "<html></html>" || got.Iteration != 1 {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestReceiveObservation(t *testing.T) {
	m := NewManager()
	client := dialTestChannel(t, m, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := map[string]any{
		"type": "observation",
		"data": map[string]any{"summary": "looks good"},
	}
	if err := wsjson.Write(ctx, client, payload); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	obs, ok := m.ReceiveWithTimeout(ctx, "s1", 3*time.Second)
	if !ok {
		t.Fatal("expected an observation")
	}
	if obs.Summary != "looks good" {
		t.Errorf("summary = %q, want %q", obs.Summary, "looks good")
	}
}

func TestReceiveTimesOut(t *testing.T) {
	m := NewManager()
	dialTestChannel(t, m, "s1")

	start := time.Now()
	obs, ok := m.ReceiveWithTimeout(context.Background(), "s1", 50*time.Millisecond)
	if ok || obs != nil {
		t.Errorf("expected absent on timeout, got %+v", obs)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestReceiveIgnoresOtherMessageTypes(t *testing.T) {
	m := NewManager()
	client := dialTestChannel(t, m, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, client, map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	// Give the read loop time to pump the frame into the inbox.
	time.Sleep(100 * time.Millisecond)

	obs, ok := m.ReceiveWithTimeout(ctx, "s1", time.Second)
	if ok || obs != nil {
		t.Errorf("non-observation message must read as absent, got %+v", obs)
	}
}

func TestReceiveWithoutConnection(t *testing.T) {
	m := NewManager()
	if _, ok := m.ReceiveWithTimeout(context.Background(), "ghost", 10*time.Millisecond); ok {
		t.Error("expected absent without a connection")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m := NewManager()
	dialTestChannel(t, m, "s1")

	m.Disconnect("s1")
	m.Disconnect("s1")

	if m.Connected("s1") {
		t.Error("session still connected after Disconnect")
	}
	if m.Send(context.Background(), "s1", Completed("done")) {
		t.Error("Send should fail after Disconnect")
	}
}
