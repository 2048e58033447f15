package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/buildchat/apiclient"
	"github.com/xiaoyuanzhu-com/buildchat/db"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/session"
)

// CreateChat handles POST /api/chats
func (h *Handlers) CreateChat(c *gin.Context) {
	var req apiclient.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if req.SeedPrompt != "" {
		name = h.server.Assistant().NameChat(c.Request.Context(), req.SeedPrompt)
	}
	if name == "" {
		RespondBadRequest(c, "name or seed_prompt is required")
		return
	}

	owner := currentUser(c)
	chat, err := h.server.DB().CreateChat(owner, name, req.SeedPrompt)
	if errors.Is(err, db.ErrInsufficientCredits) {
		log.Info().Str("owner", owner).Msg("chat creation refused: no credits")
		RespondPaymentRequired(c, "Not enough credits to create a chat")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to create chat")
		RespondInternalError(c, "Failed to create chat")
		return
	}

	log.Info().Int64("chatId", chat.ID).Str("owner", owner).Str("name", chat.Name).Msg("chat created")
	c.JSON(http.StatusCreated, apiclient.Chat{
		ID:       session.MessageID(strconv.FormatInt(chat.ID, 10)),
		Name:     chat.Name,
		Messages: []session.Message{},
	})
}

// GetChat handles GET /api/chats/:id
func (h *Handlers) GetChat(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondNotFound(c, "Chat not found")
		return
	}

	chat, err := h.server.DB().GetChat(id, currentUser(c))
	if errors.Is(err, db.ErrChatNotFound) || errors.Is(err, db.ErrChatForbidden) {
		RespondNotFound(c, "Chat not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("chatId", id).Msg("failed to get chat")
		RespondInternalError(c, "Failed to get chat")
		return
	}

	rows, err := h.server.DB().ListMessages(chat.ID)
	if err != nil {
		log.Error().Err(err).Int64("chatId", id).Msg("failed to list messages")
		RespondInternalError(c, "Failed to get chat")
		return
	}

	messages := make([]session.Message, 0, len(rows))
	for _, m := range rows {
		messages = append(messages, toSessionMessage(m))
	}

	resp := apiclient.Chat{
		ID:            session.MessageID(strconv.FormatInt(chat.ID, 10)),
		Name:          chat.Name,
		Messages:      messages,
		SandboxStatus: string(h.sandboxStatus(chat.ID)),
	}
	if len(messages) > 0 {
		resp.FilePaths = projectFiles
	}
	c.JSON(http.StatusOK, resp)
}

func toSessionMessage(m db.Message) session.Message {
	return session.Message{
		ID:              session.MessageID(m.ID),
		Role:            session.Role(m.Role),
		Content:         m.Content,
		ThinkingContent: m.ThinkingContent,
		Images:          m.Images,
	}
}
