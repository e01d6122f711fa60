package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/middleware"
	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/llm"
	"cyberchat-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatHandler streams turns over websocket and server-sent events.
type ChatHandler struct {
	chatService    service.ChatService
	sessionService service.SessionService
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatService service.ChatService, sessionService service.SessionService) *ChatHandler {
	return &ChatHandler{chatService: chatService, sessionService: sessionService}
}

// wsConn serializes writes from the reader loop and the turn goroutine.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

func completionFrame(status string) map[string]interface{} {
	return map[string]interface{}{
		"type":      "completion",
		"status":    status,
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
}

// Handle serves GET /chat/:token. Text frames are queries; {"type":"stop"} cancels the running turn.
func (h *ChatHandler) Handle(c *gin.Context) {
	sess, err := h.sessionService.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] websocket upgrade failed", err)
		return
	}
	ws := &wsConn{conn: conn}
	log.Infof("[ChatHandler] websocket connected, session: %s", sess.ID)

	ctx, cancel := context.WithCancel(context.Background())
	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
		_ = conn.Close()
		log.Infof("[ChatHandler] websocket closed, session: %s", sess.ID)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ChatHandler] read websocket message failed: %v", err)
			}
			return
		}

		if isStopCommand(message) {
			stopped := sess.Stop()
			_ = ws.writeJSON(map[string]interface{}{
				"type":      "stop",
				"stopped":   stopped,
				"timestamp": time.Now().UnixMilli(),
			})
			continue
		}

		if sess.Busy() {
			_ = ws.writeJSON(gin.H{"error": "a response is already being generated for this session"})
			continue
		}
		query := string(message)
		turns.Add(1)
		go func() {
			defer turns.Done()
			h.runWebsocketTurn(ctx, ws, sess, query)
		}()
	}
}

func (h *ChatHandler) runWebsocketTurn(ctx context.Context, ws *wsConn, sess *conversation.Session, query string) {
	res, err := h.chatService.Generate(ctx, sess, query, func(delta string) error {
		return ws.writeJSON(map[string]string{"chunk": delta})
	})

	switch {
	case errors.Is(err, service.ErrTurnCanceled):
		return
	case err != nil && !errors.Is(err, llm.ErrStreamInterrupted):
		log.Errorf("[ChatHandler] turn failed, session: %s: %v", sess.ID, err)
		_, msg := errorResponse(err)
		_ = ws.writeJSON(gin.H{"error": msg})
		return
	}

	_ = ws.writeJSON(map[string]interface{}{"type": "citations", "sources": res.Citations})
	status := "finished"
	if res.Interrupted {
		status = "interrupted"
		_, msg := errorResponse(err)
		_ = ws.writeJSON(gin.H{"error": msg})
	}
	_ = ws.writeJSON(completionFrame(status))
}

func isStopCommand(message []byte) bool {
	trimmed := strings.TrimSpace(string(message))
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var ctrl struct {
		Type string `json:"type"`
	}
	return json.Unmarshal([]byte(trimmed), &ctrl) == nil && ctrl.Type == "stop"
}

type streamRequest struct {
	Message string `json:"message" binding:"required"`
}

// Stream serves POST /chat/stream as server-sent events:
// chunk events, then citations, then completion or error.
func (h *ChatHandler) Stream(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
		return
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
	}
	event := func(name string, data interface{}) {
		begin()
		c.SSEvent(name, data)
		c.Writer.Flush()
	}

	res, err := h.chatService.Generate(c.Request.Context(), sess, req.Message, func(delta string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		event("chunk", gin.H{"chunk": delta})
		return nil
	})

	if err != nil && !errors.Is(err, llm.ErrStreamInterrupted) {
		if !errors.Is(err, service.ErrTurnCanceled) {
			log.Errorf("[ChatHandler] stream turn failed, session: %s: %v", sess.ID, err)
		}
		status, msg := errorResponse(err)
		if !started {
			c.JSON(status, gin.H{"error": msg})
			return
		}
		event("error", gin.H{"error": msg})
		return
	}

	event("citations", gin.H{"sources": res.Citations})
	if res.Interrupted {
		_, msg := errorResponse(err)
		event("error", gin.H{"error": msg})
		event("completion", completionFrame("interrupted"))
		return
	}
	event("completion", completionFrame("finished"))
}
