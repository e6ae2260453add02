package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gemini-chat/internal/ai"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/common"
	"github.com/suPer8Hu/gemini-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gemini-chat/internal/logger"
)

// /api/chat keeps the {content} / {error} shape the web client expects.
func chatFail(c *gin.Context, status int, detail any) {
	c.JSON(status, gin.H{"error": detail})
}

type chatReq struct {
	Messages []chat.Turn `json:"messages"`
}

func (h *Handler) PostChat(c *gin.Context) {
	// configuration is checked before the body is even read
	if err := h.ChatSvc.Ready(); err != nil {
		h.writeChatError(c, err)
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		chatFail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.ChatSvc.Exchange(c.Request.Context(), chat.TurnRequest{
		Messages:  req.Messages,
		Bearer:    middleware.BearerFrom(c),
		ClientIP:  c.ClientIP(),
		RequestID: middleware.RequestIDFrom(c),
	})
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	body := gin.H{"content": res.Content}
	if res.LimitReached {
		body["limitReached"] = true
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) writeChatError(c *gin.Context, err error) {
	l := logger.With("request_id", middleware.RequestIDFrom(c))

	var upstream *ai.UpstreamError
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		l.Error("chat: provider api key missing")
		chatFail(c, http.StatusInternalServerError, "Missing API Key")

	case errors.Is(err, chat.ErrEmptyMessage):
		chatFail(c, http.StatusBadRequest, "empty message")

	case errors.As(err, &upstream):
		l.Error("chat: upstream error", "provider", upstream.Provider, "status", upstream.StatusCode, "body", string(upstream.Body))
		status := upstream.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		chatFail(c, status, upstreamDetail(upstream.Body))

	default:
		l.Error("chat: server error", "err", err)
		chatFail(c, http.StatusInternalServerError, "Internal Server Error")
	}
}

// upstreamDetail passes JSON bodies through as JSON and anything else as text.
func upstreamDetail(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "upstream error"
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return trimmed
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	email := strings.ToLower(c.GetString(middleware.UserEmailKey))
	if email == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	turns, err := h.ChatSvc.History(c.Request.Context(), email)
	if err != nil {
		logger.Error("load history failed", "identity", email, "request_id", middleware.RequestIDFrom(c), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to load history")
		return
	}

	common.OK(c, gin.H{
		"userEmail": email,
		"messages":  turns,
	})
}
