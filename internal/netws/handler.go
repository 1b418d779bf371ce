// Package netws accepts websocket connections and bridges them onto a room:
// the read pump decodes client intents and hands them to the authority, the
// write pump drains the room's broadcasts.
package netws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tilerise/internal/proto"
	"tilerise/internal/room"
)

// Handler upgrades /ws requests and runs the session loops.
type Handler struct {
	manager  *room.Manager
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket entry point.
func NewHandler(manager *room.Manager, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws?room=lobby[&session=<id>]. A fresh session id is
// issued unless the client resumes one, which the room treats as a
// reconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "lobby"
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "err", err)
		return
	}

	rm := h.manager.GetOrCreate(roomID)
	sess := newSession(conn, h.logger.With("room", roomID, "session", sessionID))
	if err := rm.Attach(sessionID, sess); err != nil {
		h.logger.Warnw("attach failed", "session", sessionID, "err", err)
		conn.Close()
		return
	}

	go sess.writePump()
	h.readPump(rm, sessionID, sess)
}

func (h *Handler) readPump(rm *room.Room, sessionID string, sess *session) {
	defer func() {
		sess.close()
		rm.Detach(sessionID, sess)
	}()

	sess.conn.SetReadLimit(maxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := proto.DecodeClient(payload)
		if err != nil {
			sess.logger.Debugw("discarding malformed message", "err", err)
			continue
		}
		h.dispatch(rm, sessionID, sess, msg)
	}
}

// dispatch applies one decoded intent. Rejections are already logged and
// counted by the room; nothing is reported back to the client.
func (h *Handler) dispatch(rm *room.Room, sessionID string, sess *session, msg any) {
	var err error
	switch m := msg.(type) {
	case *proto.PlayerAdd:
		err = rm.AddPlayer(sessionID, m.Name, m.Spawn)
	case *proto.PlayerMove:
		err = rm.MovePlayer(sessionID, m.From, m.To)
	case *proto.PlayerFace:
		err = rm.FacePlayer(sessionID, m.Facing)
	case *proto.Chat:
		err = rm.RelayChat(sessionID, m.Text)
	case *proto.ItemPickup:
		err = rm.PickupItem(sessionID, m.ItemID)
	case *proto.ItemDrop:
		err = rm.DropItem(sessionID, m.ItemID, m.Tile, m.Item)
	default:
		sess.logger.Debugw("unhandled message", "type", msg)
	}
	if err == room.ErrRoomClosed {
		sess.close()
	}
}
