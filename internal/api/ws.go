package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echodm/internal/middleware"
	"github.com/lalith-99/echodm/internal/models"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients never send application data, only control frames.
	maxFrameSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The JWT is the access control; origin checking would only
		// matter for cookie auth.
		return true
	},
}

// contactsFrame and threadFrame carry full snapshots, never deltas.
// The client replaces its state wholesale on each frame, so duplicated
// or coalesced wake-ups are invisible to it.
type contactsFrame struct {
	Type     string            `json:"type"`
	Contacts []models.Identity `json:"contacts"`
	Loading  bool              `json:"loading"`
}

type threadFrame struct {
	Type     string           `json:"type"`
	Peer     *models.Identity `json:"peer"`
	Messages []models.Message `json:"messages"`
	Loading  bool             `json:"loading"`
	Sending  bool             `json:"sending"`
}

type noticeFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamHandler serves GET /v1/ws: a one-way push stream of contact
// list, open thread and notices. All mutations go over plain HTTP;
// the socket exists so the client hears about changes without polling.
type StreamHandler struct {
	registry *Registry
	logger   *zap.Logger
}

func NewStreamHandler(registry *Registry, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{registry: registry, logger: logger}
}

func (h *StreamHandler) Handle(c *gin.Context) {
	eng := h.registry.Get(middleware.GetUserID(c))
	if eng == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, log in again"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	events, cancelEvents := eng.Events.Subscribe()
	notices, cancelNotices := eng.Notices.Subscribe()

	// closed when the read pump sees the connection die
	gone := make(chan struct{})

	go h.readPump(conn, gone)
	h.writePump(conn, eng, events, notices, gone)

	cancelEvents()
	cancelNotices()
	_ = conn.Close()
}

// readPump drains the connection so control frames are processed and a
// client disconnect is noticed promptly. Any data frame is ignored.
func (h *StreamHandler) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, eng *Engine, events <-chan struct{}, notices <-chan string, gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// Initial state so the client renders without waiting for a change.
	if err := h.writeState(conn, eng); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case <-events:
			if err := h.writeState(conn, eng); err != nil {
				return
			}
		case msg := <-notices:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(noticeFrame{Type: "notice", Message: msg}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeState sends both snapshot frames. Wake-ups don't say which side
// changed, and resending an unchanged snapshot is harmless.
func (h *StreamHandler) writeState(conn *websocket.Conn, eng *Engine) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(contactsFrame{
		Type:     "contacts",
		Contacts: eng.Directory.Contacts(),
		Loading:  eng.Directory.Loading(),
	}); err != nil {
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(threadFrame{
		Type:     "thread",
		Peer:     eng.Channel.SelectedPeer(),
		Messages: eng.Channel.Thread(),
		Loading:  eng.Channel.Loading(),
		Sending:  eng.Channel.Sending(),
	})
}
