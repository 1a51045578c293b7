package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/festmatch/festmatch-backend/internal/dto"
	"github.com/festmatch/festmatch-backend/internal/http/handlers/common"
	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/service"
)

// UserModerator — дисциплинарные операции над пользователями.
type UserModerator interface {
	AddStrike(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Ban(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// AdminHandler — операции администратора: разбор споров, дисциплинарные
// меры, сверка кошельков. Все маршруты за role=admin middleware.
type AdminHandler struct {
	disputes *service.DisputeService
	matches  *service.MatchService
	wallet   *service.WalletService
	users    UserModerator
}

func NewAdminHandler(disputes *service.DisputeService, matches *service.MatchService, wallet *service.WalletService, users UserModerator) *AdminHandler {
	return &AdminHandler{disputes: disputes, matches: matches, wallet: wallet, users: users}
}

// ListDisputes GET /admin/disputes?status=
func (h *AdminHandler) ListDisputes(c *gin.Context) {
	limit, offset := common.Pagination(c)
	disputes, err := h.disputes.ListByStatus(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// ReviewDispute POST /admin/disputes/:id/review
func (h *AdminHandler) ReviewDispute(c *gin.Context) {
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.MarkUnderReview(c.Request.Context(), disputeID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// ResolveDispute POST /admin/disputes/:id/resolve
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	resolution, err := models.ParseResolution(req.Resolution, req.RefundPercentage)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var target *uuid.UUID
	if req.ActionTarget != nil {
		parsed, err := uuid.Parse(*req.ActionTarget)
		if err != nil {
			common.RespondBadRequest(c, "неверный action_target")
			return
		}
		target = &parsed
	}

	dispute, err := h.disputes.Resolve(c.Request.Context(), service.ResolveInput{
		DisputeID:    disputeID,
		ResolvedBy:   adminID,
		Resolution:   resolution,
		AdminAction:  req.AdminAction,
		ActionTarget: target,
		AdminNotes:   req.AdminNotes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// ListMatches GET /admin/matches?status=
func (h *AdminHandler) ListMatches(c *gin.Context) {
	limit, offset := common.Pagination(c)
	matches, err := h.matches.ListByStatus(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// ListUserTransactions GET /admin/users/:id/transactions
func (h *AdminHandler) ListUserTransactions(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.Pagination(c)
	transactions, err := h.wallet.ListTransactions(c.Request.Context(), userID, c.Query("type"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// StrikeUser POST /admin/users/:id/strike
func (h *AdminHandler) StrikeUser(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.users.AddStrike(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// BanUser POST /admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.users.Ban(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ReconcileWallet POST /admin/wallet/:id/reconcile
func (h *AdminHandler) ReconcileWallet(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	audit, err := h.wallet.Reconcile(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, audit)
}

// ReleaseHold POST /admin/wallet/:id/release-hold
func (h *AdminHandler) ReleaseHold(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.wallet.ReleaseHold(c.Request.Context(), userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "блокировка снята"})
}
