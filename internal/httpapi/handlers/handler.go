package handlers

import (
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/config"
	"gorm.io/gorm"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, chatSvc *chat.Service) *Handler {
	return &Handler{DB: db, Cfg: cfg, ChatSvc: chatSvc}
}
