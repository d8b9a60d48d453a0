package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

const multipartOverhead = 1 << 20

type UploadHandler struct {
	jobs         *service.JobService
	maxSize      int64
	allowedTypes map[string]struct{}
}

type uploadResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	State model.JobState `json:"state"`
}

func NewUploadHandler(jobs *service.JobService, maxSize int64, allowedExts []string) *UploadHandler {
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &UploadHandler{jobs: jobs, maxSize: maxSize, allowedTypes: allowed}
}

// Upload accepts the multipart field "file".
func (h *UploadHandler) Upload(c *gin.Context) {
	h.upload(c, "file")
}

// UploadPDF accepts the multipart field "pdf".
func (h *UploadHandler) UploadPDF(c *gin.Context) {
	h.upload(c, "pdf")
}

func (h *UploadHandler) upload(c *gin.Context, field string) {
	if h.maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	}
	file, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxSize)+" limit")
			return
		}
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, field+" is required")
		return
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxSize)+" limit")
		return
	}
	name := filepath.Base(file.Filename)
	if len(h.allowedTypes) > 0 {
		if _, ok := h.allowedTypes[strings.ToLower(filepath.Ext(name))]; !ok {
			response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "unsupported file type")
			return
		}
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	jobID, err := h.jobs.Submit(c.Request.Context(), name, opened, file.Size)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadResponse{JobID: jobID})
}

func (h *UploadHandler) Status(c *gin.Context) {
	state, err := h.jobs.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, statusResponse{State: state})
}
