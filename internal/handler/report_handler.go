package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/service"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type ReportHandler struct {
	service *service.ReportService
}

func NewReportHandler(service *service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// GetReport godoc
// @Summary Download a report
// @Description Download one report of a run: matched, unmatched, hanging, ageing, switch_update, annexure, or all (zip)
// @Tags reports
// @Produce application/octet-stream
// @Param run_id path string true "Run ID"
// @Param kind path string true "Report kind"
// @Success 200 {file} binary
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/reports/{kind} [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	runID := c.Param("run_id")
	kind := c.Param("kind")

	name, data, err := h.service.Report(runID, kind)
	if err != nil {
		logger.GetLogger().WithError(err).WithFields(map[string]interface{}{
			"run_id": runID,
			"kind":   kind,
		}).Error("Report generation failed")
		response.FromError(c, err)
		return
	}

	serveAttachment(c, name, data)
}

// DownloadTTUM godoc
// @Summary Download TTUM instruction files
// @Description Download the TTUM artifacts of a run as csv (zip of category files), xlsx, or zip. Downloading locks the run against accounting rollback.
// @Tags reports
// @Produce application/octet-stream
// @Param run_id path string true "Run ID"
// @Param format query string false "csv, xlsx or zip" default(zip)
// @Success 200 {file} binary
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/runs/{run_id}/ttum [get]
func (h *ReportHandler) DownloadTTUM(c *gin.Context) {
	runID := c.Param("run_id")
	format := c.DefaultQuery("format", "zip")

	name, data, err := h.service.DownloadTTUM(runID, format)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("TTUM download failed")
		response.FromError(c, err)
		return
	}

	serveAttachment(c, name, data)
}

func serveAttachment(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	contentType := "application/octet-stream"
	switch {
	case len(name) > 4 && name[len(name)-4:] == ".csv":
		contentType = "text/csv"
	case len(name) > 4 && name[len(name)-4:] == ".zip":
		contentType = "application/zip"
	case len(name) > 5 && name[len(name)-5:] == ".xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	c.Data(http.StatusOK, contentType, data)
}
