package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/ingest"
	"github.com/melodeon/melodeon/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: ingest.WriteBufferSize,
}

// handleAddSongs upgrades to a websocket and runs the upload session on it.
// Admin only.
func (s *Server) handleAddSongs(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.maxMessageSize)

	session := ingest.NewSession(&wsTransport{conn: conn}, s.persister)
	if err := session.Run(r.Context()); err != nil {
		logging.Error("ingest session failed", zap.Error(err))
		conn.Close()
	}
}

// wsTransport adapts a gorilla websocket connection to the session transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Receive() (ingest.Frame, error) {
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		return ingest.Frame{}, err
	}
	frameType := ingest.TextFrame
	if messageType == websocket.BinaryMessage {
		frameType = ingest.BinaryFrame
	}
	return ingest.Frame{Type: frameType, Data: data}, nil
}

func (t *wsTransport) Send(frame ingest.Frame) error {
	messageType := websocket.TextMessage
	if frame.Type == ingest.BinaryFrame {
		messageType = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(messageType, frame.Data)
}

func (t *wsTransport) Close() error {
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
