package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/common"
	"github.com/suPer8Hu/moodtune/internal/httpapi/handlers"
	"github.com/suPer8Hu/moodtune/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// stateless completion keeps its own {error} shape for 401
	r.POST("/chat", middleware.Authenticate(jwtSecret), h.Complete)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))
	authGroup.GET("/chat/session", h.GetChatSession)
	authGroup.POST("/chat/session/messages", h.SendChatMessage)
	authGroup.DELETE("/chat/session", h.ClearChatSession)
	authGroup.GET("/recommendations", h.ListRecommendations)
	authGroup.PATCH("/recommendations/:id", h.UpdateRecommendation)
	return r
}
