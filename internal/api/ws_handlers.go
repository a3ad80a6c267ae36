package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/technosupport/ts-evcam/internal/notify"
	"github.com/technosupport/ts-evcam/internal/tokens"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

type NotificationsWsHandler struct {
	Tokens *tokens.Manager
	Hub    *notify.Hub
}

func NewNotificationsWsHandler(tm *tokens.Manager, hub *notify.Hub) *NotificationsWsHandler {
	return &NotificationsWsHandler{Tokens: tm, Hub: hub}
}

// GET /api/v1/ws/notifications?token=...
func (h *NotificationsWsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Auth via Query Param (standard for WS)
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.Tokens.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}

	session := h.Hub.Connect(userID)
	log.Printf("WS Connected: User=%s Session=%s", userID, session.ID)

	go h.writePump(conn, session)
	h.readPump(conn, session)
}

// writePump drains the session queue to the socket and keeps the
// connection alive with pings.
func (h *NotificationsWsHandler) writePump(conn *websocket.Conn, session *notify.Session) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case sig, ok := <-session.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(sig); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; it exists to observe pongs and
// connection teardown.
func (h *NotificationsWsHandler) readPump(conn *websocket.Conn, session *notify.Session) {
	defer func() {
		h.Hub.Disconnect(session)
		conn.Close()
	}()

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS Read Error: %v", err)
			}
			return
		}
	}
}
