package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/service"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type VoucherHandler struct {
	service *service.AccountingService
}

func NewVoucherHandler(service *service.AccountingService) *VoucherHandler {
	return &VoucherHandler{service: service}
}

// PostVouchers godoc
// @Summary Post generated vouchers to the GL
// @Description Post every generated voucher of a run; unbalanced vouchers fail individually
// @Tags accounting
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/vouchers/post [post]
func (h *VoucherHandler) PostVouchers(c *gin.Context) {
	runID := c.Param("run_id")

	result, err := h.service.PostVouchers(runID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Voucher posting failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Vouchers posted successfully", result)
}

// GetVoucherSummary godoc
// @Summary Get the voucher summary of a run
// @Description Return the accounting summary and per-status voucher breakdown
// @Tags accounting
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/runs/{run_id}/vouchers/summary [get]
func (h *VoucherHandler) GetVoucherSummary(c *gin.Context) {
	runID := c.Param("run_id")

	vs, err := h.service.Summary(runID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Voucher summary failed")
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Voucher summary retrieved successfully", vs)
}
