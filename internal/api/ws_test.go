package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaysatani-27/buster-ai-sub003/internal/router"
)

func dialWS(t *testing.T, h http.Handler, header http.Header) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial() error = %v, status = %d", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketRunSQL(t *testing.T) {
	routerFake := &fakeRouter{result: salesResult()}
	h := NewHandler(loadTestConfig(t, map[string]string{}), Dependencies{Router: routerFake})
	conn := dialWS(t, h, http.Header{"X-User-Id": []string{"user-7"}})

	if err := conn.WriteJSON(map[string]any{
		"route":   "/sql/run",
		"payload": map[string]any{"data_source_id": "ds-1", "sql": "SELECT * FROM sales"},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var response map[string]any
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if response["route"] != "/sql/run" || response["event"] != "runSql" || response["error"] != nil {
		t.Fatalf("response = %#v", response)
	}
	payload, _ := response["payload"].(map[string]any)
	data, _ := payload["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("payload = %#v", response["payload"])
	}
	if calls := routerFake.modelingCalls(); len(calls) != 1 || calls[0].UserID != "user-7" {
		t.Fatalf("modeling = %#v", calls)
	}
}

func TestWebSocketErrorsKeepConnectionOpen(t *testing.T) {
	routerFake := &fakeRouter{err: router.ErrForbidden}
	h := NewHandler(loadTestConfig(t, map[string]string{}), Dependencies{Router: routerFake})
	conn := dialWS(t, h, http.Header{"X-User-Id": []string{"user-7"}})

	steps := []struct {
		message string
		code    string
	}{
		{message: `{"route":"/nope","payload":{}}`, code: "NOT_FOUND"},
		{message: `not json`, code: "BAD_REQUEST"},
		{message: `{"route":"/sql/run","payload":{"data_source_id":"ds-1"}}`, code: "BAD_REQUEST"},
		{message: `{"route":"/sql/run","payload":{"data_source_id":"ds-1","sql":"SELECT 1"}}`, code: "UNAUTHORIZED"},
	}
	for _, step := range steps {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(step.message)); err != nil {
			t.Fatalf("WriteMessage(%s) error = %v", step.message, err)
		}
		var response struct {
			Error *wsError `json:"error"`
		}
		if err := conn.ReadJSON(&response); err != nil {
			t.Fatalf("ReadJSON() after %s error = %v", step.message, err)
		}
		if response.Error == nil || response.Error.Code != step.code {
			t.Fatalf("response to %s = %#v", step.message, response.Error)
		}
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	h := NewHandler(loadTestConfig(t, map[string]string{}), Dependencies{Router: &fakeRouter{}})
	server := httptest.NewServer(h)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %#v", resp)
	}
}

func TestUpgraderCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")

	if newUpgrader(nil).CheckOrigin(req) {
		t.Fatal("cross-origin allowed without allow list")
	}
	if !newUpgrader([]string{"https://app.example.com"}).CheckOrigin(req) {
		t.Fatal("listed origin rejected")
	}
	req.Header.Set("Origin", "http://api.example.com")
	if !newUpgrader(nil).CheckOrigin(req) {
		t.Fatal("same origin rejected")
	}
}
