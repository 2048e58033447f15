package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/xiaoyuanzhu-com/buildchat/db"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/session"
	"github.com/xiaoyuanzhu-com/buildchat/vendors"
)

// Close codes sent by the session socket
const (
	CloseUnauthorized   websocket.StatusCode = 4001
	CloseForbidden      websocket.StatusCode = 4003
	CloseUnknownSession websocket.StatusCode = 4004
)

// projectFiles is the file tree of every emulated sandbox
var projectFiles = []string{
	"/app/package.json",
	"/app/src/App.tsx",
	"/app/src/main.tsx",
	"/app/src/index.css",
}

func previewURL(chatID int64) string {
	return fmt.Sprintf("https://chat-%d-%d.preview.localhost", chatID, session.PreviewPort)
}

// SessionSocket handles GET /session/:id?token=
func (h *Handlers) SessionSocket(c *gin.Context) {
	log.MarkHijacked(c)

	// Get the underlying http.ResponseWriter from Gin's wrapper
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Skip origin check - the token authenticates
	})
	if err != nil {
		log.Error().Err(err).Msg("session socket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Abort Gin context to prevent middleware from writing headers on hijacked connection
	c.Abort()

	username, err := verifyToken(h.server.Config().JWTSecret, c.Query("token"))
	if err != nil {
		log.Debug().Err(err).Msg("session socket token rejected")
		conn.Close(CloseUnauthorized, "unauthorized")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		conn.Close(CloseUnknownSession, "unknown session")
		return
	}
	if _, err := h.server.DB().GetChat(chatID, username); err != nil {
		switch {
		case errors.Is(err, db.ErrChatForbidden):
			conn.Close(CloseForbidden, "forbidden")
		case errors.Is(err, db.ErrChatNotFound):
			conn.Close(CloseUnknownSession, "unknown session")
		default:
			log.Error().Err(err).Int64("chatId", chatID).Msg("failed to load chat")
			conn.Close(websocket.StatusInternalError, "internal error")
		}
		return
	}

	// Gin's request context doesn't cancel when the socket closes
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(h.server.ShutdownContext(), cancel)
	defer stop()

	s := &sandbox{
		h:      h,
		conn:   conn,
		chatID: chatID,
		logger: log.GetLogger("socket").With().Int64("chatId", chatID).Logger(),
	}
	s.run(ctx)
}

// sandbox emulates the development environment behind one session socket
type sandbox struct {
	h      *Handlers
	conn   *websocket.Conn
	chatID int64
	logger zerolog.Logger

	mu     sync.Mutex
	status session.Status
	busy   bool
	wg     sync.WaitGroup
}

func (s *sandbox) run(ctx context.Context) {
	s.logger.Debug().Msg("session socket connected")
	defer s.h.setSandboxStatus(s.chatID, session.StatusOffline)

	ctx, cancel := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancel()

	if err := s.sendStatus(ctx, session.StatusBuilding); err != nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(s.h.server.Config().BuildDelay):
			s.sendStatus(ctx, session.StatusReady)
		}
	}()

	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusGoingAway ||
				closeStatus == websocket.StatusNormalClosure ||
				closeStatus == websocket.StatusNoStatusRcvd {
				s.logger.Debug().Int("closeStatus", int(closeStatus)).Msg("session socket closed normally")
			} else {
				s.logger.Debug().Err(err).Msg("session socket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			s.logger.Debug().Int("msgType", int(msgType)).Msg("ignoring non-text frame")
			continue
		}

		var msg session.OutboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Role != session.RoleUser {
			s.logger.Warn().Err(err).Msg("undecodable client frame")
			s.conn.Close(websocket.StatusUnsupportedData, "undecodable frame")
			return
		}

		if !s.claim() {
			s.logger.Warn().Str("status", string(s.currentStatus())).Msg("message while not ready, dropped")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reply(ctx, msg)
		}()
	}
}

// claim marks the sandbox busy if it is ready for a message
func (s *sandbox) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.status != session.StatusReady {
		return false
	}
	s.busy = true
	return true
}

func (s *sandbox) currentStatus() session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// reply runs one user turn: persist, stream the assistant answer, persist it
func (s *sandbox) reply(ctx context.Context, msg session.OutboundMessage) {
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.sendStatus(ctx, session.StatusReady)
	}()

	if err := s.sendStatus(ctx, session.StatusWorking); err != nil {
		return
	}

	database := s.h.server.DB()
	userMsg, err := database.InsertMessage(&db.Message{
		ChatID:  s.chatID,
		Role:    string(session.RoleUser),
		Content: msg.Content,
		Images:  msg.Images,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to persist user message")
		return
	}
	if err := s.write(ctx, session.ChatUpdateFrame{
		ForType: session.ForChatUpdate,
		Message: toSessionMessage(*userMsg),
	}); err != nil {
		return
	}

	rows, err := database.ListMessages(s.chatID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load history")
		return
	}
	history := make([]vendors.Turn, 0, len(rows))
	for _, m := range rows {
		history = append(history, vendors.Turn{Role: m.Role, Content: m.Content})
	}

	assistant := s.h.server.Assistant()
	content, err := assistant.StreamReply(ctx, history, func(chunk string) error {
		return s.write(ctx, session.ChatChunkFrame{ForType: session.ForChatChunk, Content: chunk})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("assistant reply failed")
		content = "Sorry, something went wrong while working on that."
	}

	assistantMsg, err := database.InsertMessage(&db.Message{
		ChatID:  s.chatID,
		Role:    string(session.RoleAssistant),
		Content: content,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to persist assistant message")
		return
	}

	history = append(history, vendors.Turn{Role: assistantMsg.Role, Content: assistantMsg.Content})
	s.write(ctx, session.ChatUpdateFrame{
		ForType:   session.ForChatUpdate,
		Message:   toSessionMessage(*assistantMsg),
		FollowUps: assistant.SuggestFollowUps(ctx, history),
	})
}

func (s *sandbox) sendStatus(ctx context.Context, st session.Status) error {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.h.setSandboxStatus(s.chatID, st)

	frame := session.StatusFrame{ForType: session.ForStatus, SandboxStatus: string(st)}
	if st != session.StatusBuilding {
		frame.Tunnels = map[int]string{session.PreviewPort: previewURL(s.chatID)}
		frame.FilePaths = projectFiles
	}
	return s.write(ctx, frame)
}

func (s *sandbox) write(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Debug().Err(err).Msg("session socket write failed")
		return err
	}
	return nil
}
