package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flux-project/flux-server/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	outboxSize     = 256
)

// DisconnectFunc is called once a connection has closed.
type DisconnectFunc func(ctx context.Context, connID string)

// Server upgrades HTTP requests to websockets and bridges their messages.
type Server struct {
	hub          *Hub
	bridge       *Bridge
	upgrader     websocket.Upgrader
	onDisconnect DisconnectFunc
}

// NewServer builds a websocket server.
func NewServer(hub *Hub, bridge *Bridge, onDisconnect DisconnectFunc) *Server {
	return &Server{
		hub:    hub,
		bridge: bridge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		onDisconnect: onDisconnect,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("realtime: upgrade failed")
		return
	}

	conn := NewConn(uuid.NewString(), r.RemoteAddr, outboxSize)
	s.hub.Register(conn)
	metrics.SocketOpened()
	log.WithFields(log.Fields{"conn_id": conn.ID(), "remote": r.RemoteAddr}).Debug("realtime: connection opened")

	ctx, cancel := context.WithCancel(context.Background())
	go s.writePump(ws, conn)
	s.readPump(ctx, ws, conn)

	cancel()
	s.hub.Unregister(conn.ID())
	metrics.SocketClosed()
	if s.onDisconnect != nil {
		s.onDisconnect(context.Background(), conn.ID())
	}
	log.WithField("conn_id", conn.ID()).Debug("realtime: connection closed")
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("conn_id", conn.ID()).Debug("realtime: read failed")
			}
			conn.Close()
			return
		}
		var msg Message
		if errDecode := json.Unmarshal(data, &msg); errDecode != nil {
			log.WithError(errDecode).WithField("conn_id", conn.ID()).Debug("realtime: invalid message")
			continue
		}
		go s.serve(ctx, conn, msg)
	}
}

func (s *Server) serve(ctx context.Context, conn *Conn, msg Message) {
	reply := s.bridge.Dispatch(ctx, conn, msg)
	if msg.RequestID == "" {
		return
	}
	conn.SendFrame(Frame{Event: ReplyEvent(msg.RequestID), Data: reply})
}

func (s *Server) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case payload := <-conn.Outbox():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
