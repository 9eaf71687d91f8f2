package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/chat"
	"github.com/suPer8Hu/moodtune/internal/common"
	"github.com/suPer8Hu/moodtune/internal/recommend"
)

type Handler struct {
	Chat     *chat.Service
	Sessions *chat.Sessions
	Recs     *recommend.Repo
	Log      logrus.FieldLogger
}

func NewHandler(chatSvc *chat.Service, sessions *chat.Sessions, recs *recommend.Repo, log logrus.FieldLogger) *Handler {
	if sessions == nil {
		sessions = chat.NewSessions()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Chat: chatSvc, Sessions: sessions, Recs: recs, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
