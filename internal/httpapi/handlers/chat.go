package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/moodtune/internal/ai"
	"github.com/suPer8Hu/moodtune/internal/chat"
	"github.com/suPer8Hu/moodtune/internal/common"
	"github.com/suPer8Hu/moodtune/internal/httpapi/middleware"
)

type completeReq struct {
	Messages []ai.Message `json:"messages" binding:"required"`
}

// Complete serves POST /chat. It answers with {content} or {error} instead of
// the usual envelope.
func (h *Handler) Complete(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	for _, m := range req.Messages {
		if m.Role != ai.RoleUser && m.Role != ai.RoleAssistant {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
			return
		}
	}

	content, err := h.Chat.Complete(c.Request.Context(), uid, req.Messages)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, chat.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		case errors.Is(err, chat.ErrUpstreamRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": chat.MsgRateLimited})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get AI response"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, h.Sessions.Get(uid).Snapshot())
}

type sendMessageReq struct {
	Content string `json:"content"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "content is required")
		return
	}

	msg, err := h.Chat.SendMessage(c.Request.Context(), uid, h.Sessions.Get(uid), content)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, context.Canceled):
			// client went away; nothing left to answer
			c.Status(499)
		case errors.Is(err, chat.ErrUnauthenticated):
			common.Fail(c, http.StatusUnauthorized, 40101, chat.UserMessage(err))
		case errors.Is(err, chat.ErrUpstreamRateLimited):
			common.Fail(c, http.StatusTooManyRequests, 42901, chat.UserMessage(err))
		default:
			common.Fail(c, http.StatusBadGateway, 50201, chat.UserMessage(err))
		}
		return
	}

	common.OK(c, gin.H{"message": msg})
}

func (h *Handler) ClearChatSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	h.Sessions.Clear(uid)
	common.OK(c, nil)
}
