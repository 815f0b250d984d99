package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type AuditHandler struct {
	trail *audit.Trail
}

func NewAuditHandler(trail *audit.Trail) *AuditHandler {
	return &AuditHandler{trail: trail}
}

// GetTrail godoc
// @Summary Query the audit trail
// @Description List audit events, optionally filtered by run, user, level and time range
// @Tags audit
// @Produce json
// @Param run_id query string false "Run ID"
// @Param user_id query string false "User ID"
// @Param level query string false "INFO, WARNING, ERROR or CRITICAL"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} response.Response
// @Router /api/v1/audit/trail [get]
func (h *AuditHandler) GetTrail(c *gin.Context) {
	filter, err := buildFilter(c)
	if err != nil {
		response.BadRequest(c, "Invalid time filter", err.Error())
		return
	}

	events, err := h.trail.Query(filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Audit trail retrieved successfully", events)
}

// GetSummary godoc
// @Summary Summarize the audit trail
// @Description Aggregate audit event counts by action, level and run
// @Tags audit
// @Produce json
// @Param run_id query string false "Run ID"
// @Success 200 {object} response.Response
// @Router /api/v1/audit/summary [get]
func (h *AuditHandler) GetSummary(c *gin.Context) {
	filter, err := buildFilter(c)
	if err != nil {
		response.BadRequest(c, "Invalid time filter", err.Error())
		return
	}

	s, err := h.trail.Summarize(filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Audit summary retrieved successfully", s)
}

// GetCompliance godoc
// @Summary Get a per-run compliance report
// @Description Report force matches, rollbacks, errors and users involved in one run
// @Tags audit
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Router /api/v1/audit/compliance/{run_id} [get]
func (h *AuditHandler) GetCompliance(c *gin.Context) {
	r, err := h.trail.Compliance(c.Param("run_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Compliance report retrieved successfully", r)
}

func buildFilter(c *gin.Context) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{
		RunID:  c.Query("run_id"),
		UserID: c.Query("user_id"),
		Level:  domain.AuditLevel(c.Query("level")),
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	return filter, nil
}
