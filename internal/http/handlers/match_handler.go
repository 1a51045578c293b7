package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/festmatch/festmatch-backend/internal/dto"
	"github.com/festmatch/festmatch-backend/internal/http/handlers/common"
	"github.com/festmatch/festmatch-backend/internal/service"
)

type MatchHandler struct {
	matches *service.MatchService
}

func NewMatchHandler(matches *service.MatchService) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// Create POST /matches
func (h *MatchHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	experienceID, err := uuid.Parse(req.ExperienceID)
	if err != nil {
		common.RespondBadRequest(c, "неверный experience_id")
		return
	}

	match, err := h.matches.Create(c.Request.Context(), service.CreateMatchInput{
		RequesterID:  userID,
		ExperienceID: experienceID,
		Participants: req.Participants,
		StartDate:    req.StartDate,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, match)
}

// List GET /matches
func (h *MatchHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.Pagination(c)
	matches, err := h.matches.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// Get GET /matches/:id
func (h *MatchHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	matchID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	match, err := h.matches.Get(c.Request.Context(), matchID, userID, common.IsAdmin(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}

// Accept POST /matches/:id/accept
func (h *MatchHandler) Accept(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	matchID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	match, err := h.matches.Accept(c.Request.Context(), matchID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}

// Reject POST /matches/:id/reject
func (h *MatchHandler) Reject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	matchID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RejectMatchRequest
	_ = c.ShouldBindJSON(&req) // тело необязательно

	match, err := h.matches.Reject(c.Request.Context(), matchID, userID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}

// Cancel POST /matches/:id/cancel
func (h *MatchHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	matchID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	match, err := h.matches.Cancel(c.Request.Context(), matchID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}

// Complete POST /matches/:id/complete
func (h *MatchHandler) Complete(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	matchID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	match, err := h.matches.Complete(c.Request.Context(), matchID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}
