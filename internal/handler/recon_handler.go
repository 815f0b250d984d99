package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/service"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type ReconHandler struct {
	recon   *service.ReconService
	summary *service.SummaryService
}

func NewReconHandler(recon *service.ReconService, summary *service.SummaryService) *ReconHandler {
	return &ReconHandler{recon: recon, summary: summary}
}

type ReconcileRequest struct {
	RunID string `json:"run_id"`
}

// Reconcile godoc
// @Summary Run reconciliation
// @Description Reconcile the uploaded source files of a run. An empty run_id targets the latest run.
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body ReconcileRequest false "Reconciliation request"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/reconcile [post]
func (h *ReconHandler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.GetLogger().WithError(err).Error("Invalid request")
			response.ValidationError(c, err.Error())
			return
		}
	}

	logger.GetLogger().WithField("run_id", req.RunID).Info("Starting reconciliation")

	out, err := h.recon.Reconcile(req.RunID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Reconciliation failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Reconciliation completed successfully", out)
}

// GetSummary godoc
// @Summary Get run summary
// @Description Get the reconciliation summary of a run by ID
// @Tags reconciliation
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/runs/{run_id}/summary [get]
func (h *ReconHandler) GetSummary(c *gin.Context) {
	runID := c.Param("run_id")

	rs, err := h.summary.Summary(runID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Summary not available")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Summary retrieved successfully", rs)
}

// GetLatestSummary godoc
// @Summary Get latest run summary
// @Description Get the reconciliation summary of the most recent run
// @Tags reconciliation
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/runs/latest/summary [get]
func (h *ReconHandler) GetLatestSummary(c *gin.Context) {
	rs, err := h.summary.Summary("")
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Summary retrieved successfully", rs)
}

// GetHistorical godoc
// @Summary Get historical summary
// @Description Aggregate the summaries of the most recent reconciled runs
// @Tags reconciliation
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/runs/historical [get]
func (h *ReconHandler) GetHistorical(c *gin.Context) {
	hs, err := h.summary.Historical()
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Historical summary retrieved successfully", hs)
}

// LookupRRN godoc
// @Summary Look up an RRN
// @Description Find the most recent classification of an RRN across all runs
// @Tags reconciliation
// @Produce json
// @Param rrn path string true "Retrieval reference number"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/transactions/{rrn} [get]
func (h *ReconHandler) LookupRRN(c *gin.Context) {
	rrn := c.Param("rrn")

	hit, err := h.summary.LookupRRN(rrn)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("rrn", rrn).Error("RRN lookup failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "RRN retrieved successfully", hit)
}
