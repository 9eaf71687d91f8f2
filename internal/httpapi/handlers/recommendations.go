package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/moodtune/internal/common"
	"github.com/suPer8Hu/moodtune/internal/httpapi/middleware"
	"github.com/suPer8Hu/moodtune/internal/recommend"
)

func optionalBool(c *gin.Context, key string) (*bool, bool) {
	s := c.Query(key)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func (h *Handler) ListRecommendations(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	liked, okLiked := optionalBool(c, "liked")
	hidden, okHidden := optionalBool(c, "hidden")
	if !okLiked || !okHidden {
		common.Fail(c, http.StatusBadRequest, 10003, "liked and hidden must be booleans")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	recs, err := h.Recs.ListForUser(c.Request.Context(), uid, recommend.ListFilter{
		Liked:    liked,
		Hidden:   hidden,
		Mood:     c.Query("mood"),
		Limit:    limit,
		BeforeID: beforeID,
	})
	if err != nil {
		_ = c.Error(err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list recommendations")
		return
	}

	var nextBeforeID uint64
	if len(recs) > 0 {
		nextBeforeID = recs[len(recs)-1].ID
	}
	common.OK(c, gin.H{
		"recommendations": recs,
		"next_before_id":  nextBeforeID,
	})
}

func (h *Handler) UpdateRecommendation(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid id")
		return
	}
	var req recommend.Interaction
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	rec, err := h.Recs.MarkInteraction(c.Request.Context(), uid, id, req)
	if err != nil {
		switch {
		case errors.Is(err, recommend.ErrInvalidInteraction):
			common.Fail(c, http.StatusBadRequest, 10005, "liked or hidden is required")
		case errors.Is(err, recommend.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "recommendation not found")
		default:
			_ = c.Error(err)
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to update recommendation")
		}
		return
	}
	common.OK(c, rec)
}
