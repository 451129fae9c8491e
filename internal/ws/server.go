// Package ws provides the WebSocket surface of the backend: connection
// lifecycle, the inbound action dispatch, and the per-session exclusive gate
// around mutating operations.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/agent"
	"github.com/basedhq/backend/internal/config"
	"github.com/basedhq/backend/internal/diff"
	"github.com/basedhq/backend/internal/protocol"
	"github.com/basedhq/backend/internal/session"
)

// Server handles WebSocket connections and dispatches protocol actions.
type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	agent    *agent.Agent
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, sessions *session.Manager, ag *agent.Agent, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		agent:    ag,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection, registers a fresh session, pushes
// the initial state, and starts the read/write pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}

	sess := s.sessions.Create(c.Request().Context())
	conn := newConn(ws)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)

	s.sendJSON(conn, protocol.NewInitialState())

	go s.readPump(conn, sess)

	return nil
}

// HandleHealth answers liveness probes.
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStats reports the live session count.
func (s *Server) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"sessions": s.sessions.Count()})
}

// readPump reads inbound messages until the connection drops, then discards
// the session.
func (s *Server) readPump(conn *conn, sess *session.Session) {
	defer func() {
		s.sessions.Remove(context.Background(), sess.ID)
		conn.close()
	}()

	conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, sess, message)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings.
func (s *Server) writePump(conn *conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one inbound message and dispatches it. Mutating
// actions (prompt, apply_diff) must win the session's exclusive gate; if
// another mutating operation is in flight they are rejected immediately, not
// queued. Winners run on their own goroutine so the read loop stays free to
// reject the next mutating action.
func (s *Server) handleMessage(conn *conn, sess *session.Session, data []byte) {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendJSON(conn, protocol.NewError(protocol.ActionError, "invalid JSON message"))
		return
	}

	switch req.Action {
	case protocol.ActionPrompt:
		s.dispatchMutating(conn, sess, &req, s.handlePrompt)
	case protocol.ActionApplyDiff:
		s.dispatchMutating(conn, sess, &req, s.handleApplyDiff)
	case protocol.ActionUploadFile:
		s.handleUploadFile(conn, sess, &req)
	case protocol.ActionListFiles:
		s.sendJSON(conn, protocol.NewFileList(sess.Files()))
	case protocol.ActionReadFile:
		s.handleReadFile(conn, sess, &req)
	default:
		s.sendJSON(conn, protocol.NewError(protocol.ActionError, "unknown action: "+req.Action))
	}
}

type handlerFunc func(conn *conn, sess *session.Session, req *protocol.Request)

// dispatchMutating runs a gated handler on its own goroutine. The gate is
// released in a deferred path so a handler panic cannot leave it held; the
// panic is reported generically and the connection stays open.
func (s *Server) dispatchMutating(conn *conn, sess *session.Session, req *protocol.Request, handler handlerFunc) {
	if !sess.TryAcquire() {
		s.logger.Info("rejected concurrent mutating action",
			zap.String("session_id", sess.ID), zap.String("action", req.Action))
		s.sendJSON(conn, protocol.NewError(protocol.ActionBusyError, "Another operation is already in progress"))
		return
	}

	go func() {
		defer sess.Release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panic",
					zap.String("session_id", sess.ID), zap.String("action", req.Action), zap.Any("panic", r))
				s.sendJSON(conn, protocol.NewError(protocol.ActionError, "internal error"))
			}
		}()
		handler(conn, sess, req)
	}()
}

// handlePrompt runs the intent router and the matching engine. CREATE_FILE
// generates a fresh file; EDIT_FILE generates a diff against the active file,
// falling back to creation when the workspace is empty.
func (s *Server) handlePrompt(conn *conn, sess *session.Session, req *protocol.Request) {
	ctx := context.Background()

	sess.AppendContext(req.Context...)
	contextItems := sess.Context()

	// History as it stood before this instruction; the user turn itself is
	// recorded after the snapshot.
	history := sess.History()
	s.sessions.AppendTurn(ctx, sess, session.Turn{
		Role:       session.RoleUser,
		Prompt:     req.Prompt,
		Context:    req.Context,
		ActiveFile: req.ActiveFile,
	})

	intent := s.agent.ClassifyIntent(ctx, req.Prompt, contextItems, history, sess.Files())

	if intent.Kind == agent.IntentCreateFile || !sess.HasFiles() {
		s.createFile(ctx, conn, sess, req, intent, contextItems, history)
		return
	}
	s.editFile(ctx, conn, sess, req, contextItems, history)
}

func (s *Server) createFile(ctx context.Context, conn *conn, sess *session.Session, req *protocol.Request, intent agent.Intent, contextItems []string, history []session.Turn) {
	description := intent.Description
	if description == "" {
		description = req.Prompt
	}
	filename := s.agent.GenerateFilename(ctx, description)

	result := s.agent.GenerateCode(ctx, req.Prompt, contextItems, history)
	sess.WriteFile(filename, result.Code)
	s.sessions.AppendTurn(ctx, sess, session.Turn{
		Role:     session.RoleAgent,
		Filename: filename,
		Code:     result.Code,
	})

	s.logger.Info("file created",
		zap.String("session_id", sess.ID), zap.String("filename", filename),
		zap.Int("iterations", result.Iterations), zap.Bool("validated", result.Validated))
	s.sendJSON(conn, protocol.NewFileCreated(filename, result.Code, sess.Files()))
}

func (s *Server) editFile(ctx context.Context, conn *conn, sess *session.Session, req *protocol.Request, contextItems []string, history []session.Turn) {
	baseText, ok := sess.ReadFile(req.ActiveFile)
	if !ok {
		display := req.ActiveFile
		if display == "" {
			display = "None"
		}
		s.sendJSON(conn, protocol.NewError(protocol.ActionEditError,
			fmt.Sprintf("Please select a file to edit. Active file '%s' not found or invalid.", display)))
		return
	}

	result := s.agent.GenerateDiff(ctx, baseText, req.Prompt, contextItems, history)
	sess.WriteFile(req.ActiveFile, result.NewCode)
	s.sessions.AppendTurn(ctx, sess, session.Turn{
		Role:     session.RoleAgent,
		Filename: req.ActiveFile,
		Diff:     result.Diff,
	})

	s.logger.Info("diff generated",
		zap.String("session_id", sess.ID), zap.String("filename", req.ActiveFile),
		zap.Int("iterations", result.Iterations), zap.Bool("validated", result.Validated))
	s.sendJSON(conn, protocol.NewDiffGenerated(req.ActiveFile, result.Diff, result.NewCode, result.OldCode))
}

func (s *Server) handleUploadFile(conn *conn, sess *session.Session, req *protocol.Request) {
	if req.Filename == "" {
		s.sendJSON(conn, protocol.NewError(protocol.ActionError, "filename is required"))
		return
	}
	sess.WriteFile(req.Filename, req.Content)
	s.logger.Info("file uploaded", zap.String("session_id", sess.ID), zap.String("filename", req.Filename))
	s.sendJSON(conn, protocol.NewFileUploaded(req.Filename, sess.Files()))
}

func (s *Server) handleReadFile(conn *conn, sess *session.Session, req *protocol.Request) {
	content, ok := sess.ReadFile(req.Filename)
	if !ok {
		s.sendJSON(conn, protocol.NewError(protocol.ActionError, "File not found"))
		return
	}
	s.sendJSON(conn, protocol.NewFileContent(req.Filename, content))
}

// handleApplyDiff normalizes a caller-supplied diff, applies it against the
// named workspace entry, and persists the result.
func (s *Server) handleApplyDiff(conn *conn, sess *session.Session, req *protocol.Request) {
	base, ok := sess.ReadFile(req.Filename)
	if !ok {
		s.sendJSON(conn, protocol.NewError(protocol.ActionApplyDiffError, "File not found or invalid for diff"))
		return
	}

	newCode, err := diff.ApplyPatch(base, diff.Normalize(req.Diff))
	if err != nil {
		s.logger.Warn("patch apply failed",
			zap.String("session_id", sess.ID), zap.String("filename", req.Filename), zap.Error(err))
		s.sendJSON(conn, protocol.NewError(protocol.ActionApplyDiffError, "Patch failed: "+err.Error()))
		return
	}

	sess.WriteFile(req.Filename, newCode)
	s.logger.Info("diff applied", zap.String("session_id", sess.ID), zap.String("filename", req.Filename))
	s.sendJSON(conn, protocol.NewDiffApplied(req.Filename, newCode))
}

// sendJSON marshals a response and queues it on the connection.
func (s *Server) sendJSON(conn *conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	if !conn.enqueue(data) {
		s.logger.Warn("dropping message: connection closed or send queue full")
	}
}
