package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/medview/image-enhancer/internal/api/respond"
	"github.com/medview/image-enhancer/internal/model"
	"github.com/medview/image-enhancer/internal/repository/job"
	imagesvc "github.com/medview/image-enhancer/internal/service/image"
	"github.com/medview/image-enhancer/internal/storage/file"
)

// service defines the interface for the image lifecycle operations.
type service interface {
	Upload(ctx context.Context, filename, mimeType string, declaredSize int64, src io.Reader) (model.ImageJob, error)
	Enhance(ctx context.Context, id uuid.UUID) (model.ImageJob, error)
	History(ctx context.Context) ([]model.ImageJob, error)
	Open(ctx context.Context, id uuid.UUID, namespace string) (model.ImageJob, io.ReadCloser, error)
	Download(ctx context.Context, id uuid.UUID) (model.ImageJob, io.ReadCloser, error)
}

// Handler provides HTTP handlers for the image lifecycle endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// UploadResponse is the payload returned after a successful upload.
type UploadResponse struct {
	Success          bool   `json:"success"`
	ImageID          string `json:"imageId"`
	OriginalImageURL string `json:"originalImageUrl"`
	Message          string `json:"message"`
}

// EnhanceResponse is the payload returned after a successful enhancement.
type EnhanceResponse struct {
	Success          bool    `json:"success"`
	EnhancedImageURL string  `json:"enhancedImageUrl"`
	ProcessingTime   float64 `json:"processingTime"`
	EnhancementType  string  `json:"enhancementType"`
	Message          string  `json:"message"`
}

// HistoryResponse wraps the job listing.
type HistoryResponse struct {
	Success bool            `json:"success"`
	Data    []HistoryRecord `json:"data"`
}

// HistoryRecord is one job in the history listing, extended with the name
// of the enhanced output once it exists.
type HistoryRecord struct {
	model.ImageJob
	EnhancedImageName string `json:"enhancedImageName,omitempty"`
}

// Upload handles POST /api/images/upload. It reads the multipart file and
// delegates validation and persistence to the service.
func (h *Handler) Upload(c *ginext.Context) {
	f, header, err := c.Request.FormFile("file")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer f.Close()

	j, err := h.service.Upload(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, f)
	if err != nil {
		if imagesvc.IsValidationError(err) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Msg("failed to upload the image")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to upload image"))
		return
	}

	respond.OK(c, UploadResponse{
		Success:          true,
		ImageID:          j.ID.String(),
		OriginalImageURL: "/api/images/original/" + j.ID.String(),
		Message:          "Image uploaded successfully",
	})
}

// Enhance handles POST /api/images/:id/enhance.
func (h *Handler) Enhance(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	j, err := h.service.Enhance(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("image not found"))
		case errors.Is(err, job.ErrJobProcessing):
			respond.Fail(c, http.StatusConflict, fmt.Errorf("image is already being processed"))
		case errors.Is(err, imagesvc.ErrEnhanceFailed):
			zlog.Logger.Err(err).Str("id", id.String()).Msg("enhancement failed")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to enhance image"))
		default:
			zlog.Logger.Err(err).Str("id", id.String()).Msg("failed to enhance the image")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to enhance image"))
		}
		return
	}

	var seconds float64
	if j.ProcessingTime != nil {
		seconds = *j.ProcessingTime
	}

	respond.OK(c, EnhanceResponse{
		Success:          true,
		EnhancedImageURL: "/api/images/enhanced/" + j.ID.String(),
		ProcessingTime:   seconds,
		EnhancementType:  j.EnhancementType,
		Message:          "Image enhanced successfully",
	})
}

// History handles GET /api/images/history.
func (h *Handler) History(c *ginext.Context) {
	jobs, err := h.service.History(c.Request.Context())
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to fetch history")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to fetch enhancement history"))
		return
	}

	records := make([]HistoryRecord, 0, len(jobs))
	for _, j := range jobs {
		rec := HistoryRecord{ImageJob: j}
		if j.Status == model.StatusCompleted {
			rec.EnhancedImageName = j.EnhancedName()
		}
		records = append(records, rec)
	}

	respond.OK(c, HistoryResponse{Success: true, Data: records})
}

// GetOriginal handles GET /api/images/original/:id, serving the stored
// bytes with the mime type captured at upload.
func (h *Handler) GetOriginal(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	j, src, err := h.service.Open(c.Request.Context(), id, file.NamespaceOriginal)
	if err != nil {
		h.failAsset(c, id, err)
		return
	}
	defer src.Close()

	respond.Stream(c, http.StatusOK, j.MimeType, j.FileSize, src)
}

// GetEnhanced handles GET /api/images/enhanced/:id.
func (h *Handler) GetEnhanced(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	_, src, err := h.service.Open(c.Request.Context(), id, file.NamespaceEnhanced)
	if err != nil {
		h.failAsset(c, id, err)
		return
	}
	defer src.Close()

	respond.Stream(c, http.StatusOK, "image/png", -1, src)
}

// Download handles GET /api/images/:id/download, returning the enhanced
// PNG as an attachment named after the original file.
func (h *Handler) Download(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	j, src, err := h.service.Download(c.Request.Context(), id)
	if err != nil {
		h.failAsset(c, id, err)
		return
	}
	defer src.Close()

	respond.Attachment(c, "image/png", j.EnhancedName(), src)
}

// failAsset maps asset retrieval errors onto HTTP statuses shared by the
// serve and download endpoints.
func (h *Handler) failAsset(c *ginext.Context, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("image not found"))
	case errors.Is(err, file.ErrAssetNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("image file not found"))
	case errors.Is(err, imagesvc.ErrNotEnhanced):
		respond.Fail(c, http.StatusConflict, fmt.Errorf("enhanced image not available"))
	default:
		zlog.Logger.Err(err).Str("id", id.String()).Msg("failed to serve image")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to serve image"))
	}
}

// parseID extracts and validates the :id path parameter. On failure it
// writes the error response itself.
func parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	if idStr == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing id"))
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return uuid.Nil, false
	}

	return id, true
}
