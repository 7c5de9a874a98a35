package image

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"github.com/medview/image-enhancer/internal/model"
	"github.com/medview/image-enhancer/internal/repository/job"
	imagesvc "github.com/medview/image-enhancer/internal/service/image"
	"github.com/medview/image-enhancer/internal/storage/file"
)

// stubService lets each test script the lifecycle operations.
type stubService struct {
	upload   func(ctx context.Context, filename, mimeType string, declaredSize int64, src io.Reader) (model.ImageJob, error)
	enhance  func(ctx context.Context, id uuid.UUID) (model.ImageJob, error)
	history  func(ctx context.Context) ([]model.ImageJob, error)
	open     func(ctx context.Context, id uuid.UUID, namespace string) (model.ImageJob, io.ReadCloser, error)
	download func(ctx context.Context, id uuid.UUID) (model.ImageJob, io.ReadCloser, error)
}

func (s *stubService) Upload(ctx context.Context, filename, mimeType string, declaredSize int64, src io.Reader) (model.ImageJob, error) {
	return s.upload(ctx, filename, mimeType, declaredSize, src)
}

func (s *stubService) Enhance(ctx context.Context, id uuid.UUID) (model.ImageJob, error) {
	return s.enhance(ctx, id)
}

func (s *stubService) History(ctx context.Context) ([]model.ImageJob, error) {
	return s.history(ctx)
}

func (s *stubService) Open(ctx context.Context, id uuid.UUID, namespace string) (model.ImageJob, io.ReadCloser, error) {
	return s.open(ctx, id, namespace)
}

func (s *stubService) Download(ctx context.Context, id uuid.UUID) (model.ImageJob, io.ReadCloser, error) {
	return s.download(ctx, id)
}

func newTestRouter(s *stubService) *ginext.Engine {
	h := NewHandler(s)

	r := ginext.New()
	api := r.Group("/api/images")
	api.POST("/upload", h.Upload)
	api.GET("/history", h.History)
	api.GET("/original/:id", h.GetOriginal)
	api.GET("/enhanced/:id", h.GetEnhanced)
	api.POST("/:id/enhance", h.Enhance)
	api.GET("/:id/download", h.Download)

	return r
}

// multipartBody builds a multipart form with a single image part carrying
// the given content type.
func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	return body, w.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	id := uuid.New()
	svc := &stubService{
		upload: func(_ context.Context, filename, mimeType string, declaredSize int64, src io.Reader) (model.ImageJob, error) {
			if filename != "scan.png" {
				t.Errorf("filename = %q, want %q", filename, "scan.png")
			}
			if mimeType != "image/png" {
				t.Errorf("mimeType = %q, want %q", mimeType, "image/png")
			}

			data, _ := io.ReadAll(src)
			if string(data) != "pngdata" {
				t.Errorf("content = %q, want %q", data, "pngdata")
			}

			return model.ImageJob{ID: id, Status: model.StatusUploaded}, nil
		},
	}

	body, contentType := multipartBody(t, "scan.png", "image/png", "pngdata")
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body)
	}

	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.ImageID != id.String() {
		t.Errorf("imageId = %q, want %q", resp.ImageID, id)
	}
	if resp.OriginalImageURL != "/api/images/original/"+id.String() {
		t.Errorf("originalImageUrl = %q", resp.OriginalImageURL)
	}
}

func TestUploadHandlerValidation(t *testing.T) {
	svc := &stubService{
		upload: func(context.Context, string, string, int64, io.Reader) (model.ImageJob, error) {
			return model.ImageJob{}, imagesvc.ErrInvalidFormat
		},
	}

	body, contentType := multipartBody(t, "scan.gif", "image/gif", "gifdata")
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), imagesvc.ErrInvalidFormat.Error()) {
		t.Errorf("body %q does not carry the validation message", w.Body)
	}
}

func TestEnhanceHandler(t *testing.T) {
	id := uuid.New()
	seconds := 0.42
	now := time.Now().UTC()

	svc := &stubService{
		enhance: func(_ context.Context, got uuid.UUID) (model.ImageJob, error) {
			if got != id {
				t.Errorf("id = %s, want %s", got, id)
			}

			return model.ImageJob{
				ID:              id,
				Status:          model.StatusCompleted,
				EnhancementType: model.EnhancementGrayscale,
				EnhancedAt:      &now,
				ProcessingTime:  &seconds,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/images/"+id.String()+"/enhance", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body)
	}

	var resp EnhanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ProcessingTime != seconds {
		t.Errorf("processingTime = %v, want %v", resp.ProcessingTime, seconds)
	}
	if resp.EnhancementType != model.EnhancementGrayscale {
		t.Errorf("enhancementType = %q", resp.EnhancementType)
	}
	if resp.EnhancedImageURL != "/api/images/enhanced/"+id.String() {
		t.Errorf("enhancedImageUrl = %q", resp.EnhancedImageURL)
	}
}

func TestEnhanceHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: job.ErrJobNotFound, wantStatus: http.StatusNotFound},
		{name: "already processing", err: job.ErrJobProcessing, wantStatus: http.StatusConflict},
		{name: "processing failure", err: imagesvc.ErrEnhanceFailed, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				enhance: func(context.Context, uuid.UUID) (model.ImageJob, error) {
					return model.ImageJob{}, tt.err
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/api/images/"+uuid.NewString()+"/enhance", nil)
			w := httptest.NewRecorder()
			newTestRouter(svc).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestEnhanceHandlerInvalidID(t *testing.T) {
	svc := &stubService{}

	req := httptest.NewRequest(http.MethodPost, "/api/images/not-a-uuid/enhance", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHistoryHandler(t *testing.T) {
	done := uuid.New()
	pending := uuid.New()

	svc := &stubService{
		history: func(context.Context) ([]model.ImageJob, error) {
			return []model.ImageJob{
				{ID: done, OriginalName: "scan.jpg", Status: model.StatusCompleted},
				{ID: pending, OriginalName: "other.png", Status: model.StatusUploaded},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/history", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].EnhancedImageName != "enhanced_scan.png" {
		t.Errorf("enhancedImageName = %q, want %q", resp.Data[0].EnhancedImageName, "enhanced_scan.png")
	}
	if resp.Data[1].EnhancedImageName != "" {
		t.Errorf("pending job carries enhancedImageName %q", resp.Data[1].EnhancedImageName)
	}
}

func TestGetOriginalHandler(t *testing.T) {
	id := uuid.New()
	svc := &stubService{
		open: func(_ context.Context, _ uuid.UUID, namespace string) (model.ImageJob, io.ReadCloser, error) {
			if namespace != file.NamespaceOriginal {
				t.Errorf("namespace = %q, want %q", namespace, file.NamespaceOriginal)
			}

			j := model.ImageJob{ID: id, MimeType: "image/jpeg", FileSize: 8}
			return j, io.NopCloser(strings.NewReader("jpegdata")), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/original/"+id.String(), nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q, want %q", got, "image/jpeg")
	}
	if w.Body.String() != "jpegdata" {
		t.Errorf("body = %q, want %q", w.Body, "jpegdata")
	}
}

func TestGetEnhancedHandlerNotReady(t *testing.T) {
	svc := &stubService{
		open: func(context.Context, uuid.UUID, string) (model.ImageJob, io.ReadCloser, error) {
			return model.ImageJob{}, nil, imagesvc.ErrNotEnhanced
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/enhanced/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestDownloadHandler(t *testing.T) {
	id := uuid.New()
	svc := &stubService{
		download: func(context.Context, uuid.UUID) (model.ImageJob, io.ReadCloser, error) {
			j := model.ImageJob{ID: id, OriginalName: "chest_xray.jpg", Status: model.StatusCompleted}
			return j, io.NopCloser(strings.NewReader("pngbytes")), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/"+id.String()+"/download", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	want := `attachment; filename="enhanced_chest_xray.png"`
	if got := w.Header().Get("Content-Disposition"); got != want {
		t.Errorf("Content-Disposition = %q, want %q", got, want)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want %q", got, "image/png")
	}
	if w.Body.String() != "pngbytes" {
		t.Errorf("body = %q, want %q", w.Body, "pngbytes")
	}
}

func TestDownloadHandlerQuotesFilename(t *testing.T) {
	id := uuid.New()
	svc := &stubService{
		download: func(context.Context, uuid.UUID) (model.ImageJob, io.ReadCloser, error) {
			j := model.ImageJob{ID: id, OriginalName: "chest xray; lateral.jpg", Status: model.StatusCompleted}
			return j, io.NopCloser(strings.NewReader("pngbytes")), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/"+id.String()+"/download", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	// Spaces and semicolons in the original name must stay inside the
	// quoted filename parameter.
	want := `attachment; filename="enhanced_chest xray; lateral.png"`
	if got := w.Header().Get("Content-Disposition"); got != want {
		t.Errorf("Content-Disposition = %q, want %q", got, want)
	}
}

func TestDownloadHandlerNotFound(t *testing.T) {
	svc := &stubService{
		download: func(context.Context, uuid.UUID) (model.ImageJob, io.ReadCloser, error) {
			return model.ImageJob{}, nil, job.ErrJobNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images/"+uuid.NewString()+"/download", nil)
	w := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
