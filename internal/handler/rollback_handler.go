package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/rollback"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type RollbackHandler struct {
	manager *rollback.Manager
}

func NewRollbackHandler(manager *rollback.Manager) *RollbackHandler {
	return &RollbackHandler{manager: manager}
}

type RollbackRequest struct {
	Filename    string   `json:"filename"`
	RRNs        []string `json:"rrns"`
	CycleID     string   `json:"cycle_id"`
	VoucherIDs  []string `json:"voucher_ids"`
	Reason      string   `json:"reason"`
	RequestedBy string   `json:"requested_by"`
}

// Ingestion godoc
// @Summary Roll back an ingested file
// @Description Remove one uploaded file from a run before re-uploading a corrected copy
// @Tags rollback
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body RollbackRequest true "Rollback request (filename required)"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/rollback/ingestion [post]
func (h *RollbackHandler) Ingestion(c *gin.Context) {
	h.run(c, func(runID string, req RollbackRequest) (interface{}, error) {
		return h.manager.Ingestion(runID, req.Filename, req.Reason, req.RequestedBy)
	})
}

// MidRecon godoc
// @Summary Roll back reconciliation results
// @Description Reset matched records of a run back to unprocessed; an empty rrns list resets every matched record
// @Tags rollback
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body RollbackRequest true "Rollback request"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/rollback/mid-recon [post]
func (h *RollbackHandler) MidRecon(c *gin.Context) {
	h.run(c, func(runID string, req RollbackRequest) (interface{}, error) {
		return h.manager.MidRecon(runID, req.RRNs, req.Reason, req.RequestedBy)
	})
}

// CycleWise godoc
// @Summary Roll back one settlement cycle
// @Description Reset the matched records of one settlement cycle of a run
// @Tags rollback
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body RollbackRequest true "Rollback request (cycle_id required)"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/runs/{run_id}/rollback/cycle [post]
func (h *RollbackHandler) CycleWise(c *gin.Context) {
	h.run(c, func(runID string, req RollbackRequest) (interface{}, error) {
		return h.manager.CycleWise(runID, req.CycleID, req.Reason, req.RequestedBy)
	})
}

// Accounting godoc
// @Summary Roll back accounting vouchers
// @Description Reset generated vouchers of a run; refused once the TTUM artifacts have been downloaded
// @Tags rollback
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body RollbackRequest true "Rollback request (reason required)"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/runs/{run_id}/rollback/accounting [post]
func (h *RollbackHandler) Accounting(c *gin.Context) {
	h.run(c, func(runID string, req RollbackRequest) (interface{}, error) {
		return h.manager.Accounting(runID, req.VoucherIDs, req.Reason, req.RequestedBy)
	})
}

// WholeProcess godoc
// @Summary Roll back an entire run
// @Description Remove every input and output of a run
// @Tags rollback
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param request body RollbackRequest true "Rollback request"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/runs/{run_id}/rollback/whole [post]
func (h *RollbackHandler) WholeProcess(c *gin.Context) {
	h.run(c, func(runID string, req RollbackRequest) (interface{}, error) {
		return h.manager.WholeProcess(runID, req.Reason, req.RequestedBy)
	})
}

// History godoc
// @Summary Get rollback history
// @Description List rollback operations, optionally filtered by run
// @Tags rollback
// @Produce json
// @Param run_id query string false "Run ID"
// @Success 200 {object} response.Response
// @Router /api/v1/rollback/history [get]
func (h *RollbackHandler) History(c *gin.Context) {
	history, err := h.manager.History()
	if err != nil {
		response.FromError(c, err)
		return
	}

	if runID := c.Query("run_id"); runID != "" {
		filtered := history[:0]
		for _, rec := range history {
			if rec.RunID == runID {
				filtered = append(filtered, rec)
			}
		}
		history = filtered
	}

	response.Success(c, http.StatusOK, "Rollback history retrieved successfully", history)
}

func (h *RollbackHandler) run(c *gin.Context, op func(runID string, req RollbackRequest) (interface{}, error)) {
	runID := c.Param("run_id")

	var req RollbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.GetLogger().WithError(err).Error("Invalid request")
			response.ValidationError(c, err.Error())
			return
		}
	}

	result, err := op(runID, req)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Rollback failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Rollback completed successfully", result)
}
