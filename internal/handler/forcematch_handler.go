package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/forcematch"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type ForceMatchHandler struct {
	service *forcematch.Service
}

func NewForceMatchHandler(service *forcematch.Service) *ForceMatchHandler {
	return &ForceMatchHandler{service: service}
}

type ProposeRequest struct {
	RRN       string `json:"rrn" binding:"required"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Maker     string `json:"maker" binding:"required"`
	Direction string `json:"direction"`
}

type DecisionRequest struct {
	Checker  string `json:"checker" binding:"required"`
	Comments string `json:"comments"`
}

// Propose godoc
// @Summary Propose a force match
// @Description Propose marking an unmatched RRN as matched; a different user must approve it
// @Tags force-match
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body ProposeRequest true "Proposal"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/runs/{run_id}/force-match [post]
func (h *ForceMatchHandler) Propose(c *gin.Context) {
	runID := c.Param("run_id")

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	p, err := h.service.Propose(runID, req.RRN, req.Action, req.Reason, req.Maker, domain.Direction(req.Direction))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Force match proposal failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "Proposal created successfully", p)
}

// Approve godoc
// @Summary Approve a force match proposal
// @Description Approve a pending proposal; the checker must differ from the maker
// @Tags force-match
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param proposal_id path string true "Proposal ID"
// @Param request body DecisionRequest true "Approval"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/force-match/{proposal_id}/approve [post]
func (h *ForceMatchHandler) Approve(c *gin.Context) {
	runID := c.Param("run_id")
	proposalID := c.Param("proposal_id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	p, err := h.service.Approve(runID, proposalID, req.Checker, req.Comments)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("proposal_id", proposalID).Error("Force match approval failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Proposal approved successfully", p)
}

// Reject godoc
// @Summary Reject a force match proposal
// @Description Reject a pending proposal; the reconciliation record is left untouched
// @Tags force-match
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param proposal_id path string true "Proposal ID"
// @Param request body DecisionRequest true "Rejection"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/runs/{run_id}/force-match/{proposal_id}/reject [post]
func (h *ForceMatchHandler) Reject(c *gin.Context) {
	runID := c.Param("run_id")
	proposalID := c.Param("proposal_id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	p, err := h.service.Reject(runID, proposalID, req.Checker, req.Comments)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("proposal_id", proposalID).Error("Force match rejection failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Proposal rejected successfully", p)
}

// List godoc
// @Summary List force match proposals
// @Description List every proposal of a run with its state
// @Tags force-match
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Router /api/v1/runs/{run_id}/force-match [get]
func (h *ForceMatchHandler) List(c *gin.Context) {
	runID := c.Param("run_id")

	proposals, err := h.service.List(runID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Proposals retrieved successfully", proposals)
}
