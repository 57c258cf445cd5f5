package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"safetrip/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (g *Gateway) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := g.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	g.writeLocks.Delete(conn)
}

// wsWriteMessage sets a short write deadline and writes a message.
func (g *Gateway) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := g.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the mutex for a specific connection
func (g *Gateway) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := g.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := g.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (g *Gateway) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return g.wsWriteMessage(conn, websocket.TextMessage, payload)
}

// sendError delivers a structured error event; the connection stays open.
func (g *Gateway) sendError(conn *websocket.Conn, message, detail string) {
	_ = g.writeJSON(conn, contracts.WSError{
		Type:    contracts.EventError,
		Message: message,
		Detail:  detail,
	})
}

// sendAuthError sends authentication error message to client
func (g *Gateway) sendAuthError(conn *websocket.Conn, message string) error {
	errorMsg := map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	}
	msgBytes, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}
	return g.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}

// sendAuthSuccess sends authentication success message to client
func (g *Gateway) sendAuthSuccess(conn *websocket.Conn, userID string) error {
	successMsg := map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	msgBytes, err := json.Marshal(successMsg)
	if err != nil {
		return err
	}
	return g.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}
