package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsRouteRunSQL = "/sql/run"
	wsEventRunSQL = "runSql"

	wsClientTimeout = 300 * time.Second
	wsPingInterval  = 15 * time.Second
	wsWriteTimeout  = 5 * time.Second
	wsMaxMessage    = 1 << 20
)

type wsRequest struct {
	Route   string          `json:"route"`
	Payload json.RawMessage `json:"payload"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsResponse struct {
	Route   string   `json:"route"`
	Event   string   `json:"event,omitempty"`
	Payload any      `json:"payload"`
	Error   *wsError `json:"error,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(origins) == 0 {
				// Same-origin only without an allow list.
				parsed, err := url.Parse(origin)
				return err == nil && strings.EqualFold(parsed.Host, r.Host)
			}
			return slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
}

// handleWebSocket serves run-sql requests over one connection. Requests are
// handled in order; each gets exactly one response.
func handleWebSocket(deps Dependencies, origins []string, w http.ResponseWriter, r *http.Request) {
	if deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}

	upgrader := newUpgrader(origins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsClientTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsClientTimeout))
	})

	ctx := r.Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var message wsRequest
		if err := conn.ReadJSON(&message); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if writeErr := writeWS(conn, wsResponse{Error: &wsError{Code: "BAD_REQUEST", Message: "message is not valid JSON"}}); writeErr != nil {
					return
				}
				continue
			}
			if deps.Logger != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				deps.Logger.WarnContext(ctx, "websocket read failed", "error", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsClientTimeout))

		if err := writeWS(conn, dispatchWS(deps, r, userID, message)); err != nil {
			return
		}
	}
}

func dispatchWS(deps Dependencies, r *http.Request, userID string, message wsRequest) wsResponse {
	if message.Route != wsRouteRunSQL {
		return wsResponse{Route: message.Route, Error: &wsError{Code: "NOT_FOUND", Message: "unknown route " + message.Route}}
	}
	response := wsResponse{Route: message.Route, Event: wsEventRunSQL}

	var request runSQLRequest
	decoder := json.NewDecoder(bytes.NewReader(message.Payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		response.Error = &wsError{Code: "BAD_REQUEST", Message: "invalid run request payload"}
		return response
	}

	result, status, err := runModelingSQL(r.Context(), deps, userID, request)
	if err != nil {
		if status == 0 {
			status, _, _ = routeErrorStatus(err)
		}
		response.Error = &wsError{Code: wsErrorCode(status), Message: err.Error()}
		return response
	}
	response.Payload = result
	return response
}

func wsErrorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "UNAUTHORIZED"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "BAD_REQUEST"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

func writeWS(conn *websocket.Conn, response wsResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(response)
}
