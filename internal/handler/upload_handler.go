package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/service"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(service *service.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Upload godoc
// @Summary Upload reconciliation source files
// @Description Upload CBS, Switch, NPCI, NTSL and adjustment files for one settlement cycle. The upload is atomic: any invalid file rejects the whole request.
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Param cycle_id formData string false "Settlement cycle (1C..10C or 1A..4)"
// @Param run_date formData string false "Business date YYYY-MM-DD"
// @Param direction formData string false "INWARD or OUTWARD"
// @Param uploaded_by formData string false "User id of the uploader"
// @Param cbs_inward formData file false "CBS inward file"
// @Param switch formData file false "Switch file"
// @Param npci_inward formData file false "NPCI inward file"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Invalid multipart request")
		response.BadRequest(c, "Invalid multipart form", err.Error())
		return
	}

	req := service.UploadRequest{
		CycleID:    c.PostForm("cycle_id"),
		RunDate:    c.PostForm("run_date"),
		Direction:  domain.Direction(c.PostForm("direction")),
		CBSBalance: c.PostForm("cbs_balance"),
		UploadedBy: c.PostForm("uploaded_by"),
	}
	for _, slot := range domain.UploadSlots {
		headers := form.File[slot]
		if len(headers) == 0 {
			continue
		}
		data, err := readUpload(headers[0])
		if err != nil {
			logger.GetLogger().WithError(err).WithField("slot", slot).Error("Reading uploaded file")
			response.BadRequest(c, "Could not read uploaded file", headers[0].Filename)
			return
		}
		req.Files = append(req.Files, service.UploadFile{
			Slot:     slot,
			Filename: headers[0].Filename,
			Data:     data,
		})
	}

	result, rejections, err := h.service.Upload(req)
	if err != nil {
		if len(rejections) > 0 {
			response.Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"One or more files failed validation", rejections)
			return
		}
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "Files uploaded successfully", result)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
