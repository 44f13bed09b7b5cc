package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"idle_engine/internal/logbus"
)

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) logbus.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg logbus.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHandlerReplaysAndFiltersTypes(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	bus.Log("info", "before connect", nil)
	bus.Publish(logbus.TypeCardFarmingState, map[string]any{"running": true})

	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(bus, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "?types="+logbus.TypeCardFarmingState, nil)
	if msg := readMessage(t, conn); msg.Type != logbus.TypeCardFarmingState {
		t.Fatalf("expected replayed state, got %q", msg.Type)
	}

	bus.Log("info", "filtered out", nil)
	bus.Publish(logbus.TypeCardFarmingState, map[string]any{"running": false})
	if msg := readMessage(t, conn); msg.Type != logbus.TypeCardFarmingState {
		t.Fatalf("log message should be filtered, got %q", msg.Type)
	}
}

func TestHandlerRejectsForeignOrigin(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	srv := httptest.NewServer(NewHandler(bus, []string{"http://localhost:5173"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected the handshake to be refused")
	}

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = conn.Close()
}
