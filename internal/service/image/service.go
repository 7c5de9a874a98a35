package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/medview/image-enhancer/internal/model"
	"github.com/medview/image-enhancer/internal/storage/file"
)

// MaxFileSize is the upload limit in bytes.
const MaxFileSize = 10 << 20 // 10 MiB

// Validation and state errors surfaced to the API layer.
var (
	ErrInvalidFormat = errors.New("only JPG, JPEG and PNG files are allowed")
	ErrFileTooLarge  = errors.New("file size exceeds 10MB limit")
	ErrEmptyFile     = errors.New("file is empty")
	ErrSizeMismatch  = errors.New("declared file size does not match content")
	ErrNotEnhanced   = errors.New("enhanced image not available")
	ErrEnhanceFailed = errors.New("failed to enhance image")
)

// allowedMimeTypes is the upload allow-list.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// fileStorage defines the interface for the asset store backend.
type fileStorage interface {
	Save(ctx context.Context, namespace, name string, src io.Reader, size int64, contentType string) error
	Load(ctx context.Context, namespace, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, namespace, name string) error
}

// jobRepository defines the interface for the job record store.
type jobRepository interface {
	Insert(ctx context.Context, j model.ImageJob) error
	Get(ctx context.Context, id uuid.UUID) (model.ImageJob, error)
	Update(ctx context.Context, j model.ImageJob) error
	SetProcessing(ctx context.Context, id uuid.UUID) (model.ImageJob, error)
	List(ctx context.Context) ([]model.ImageJob, error)
}

// imageProcessor defines the interface for the enhancement engine.
type imageProcessor interface {
	Process(src io.Reader) ([]byte, time.Duration, error)
}

// producer defines the interface for publishing upload events to a queue.
type producer interface {
	Produce(ctx context.Context, e model.UploadedEvent) error
}

// Service owns the enhancement job lifecycle: it validates uploads, keeps
// the asset store and the job table consistent, and gates every transition
// into Processing through the repository's compare-and-set.
type Service struct {
	storage   fileStorage
	repo      jobRepository
	processor imageProcessor
	producer  producer // optional; nil when the queue is disabled
}

// NewService creates a new Service. The producer may be nil, in which case
// upload events are not published.
func NewService(fs fileStorage, r jobRepository, p imageProcessor, pr producer) *Service {
	return &Service{storage: fs, repo: r, processor: p, producer: pr}
}

// Upload validates the file, stores the original bytes, and creates the job
// record. The asset is written first; if the record insert fails the asset
// is deleted again so no orphan blob survives a failed upload.
func (s *Service) Upload(ctx context.Context, filename, mimeType string, declaredSize int64, src io.Reader) (model.ImageJob, error) {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if !allowedMimeTypes[mimeType] {
		return model.ImageJob{}, ErrInvalidFormat
	}
	if declaredSize > MaxFileSize {
		return model.ImageJob{}, ErrFileTooLarge
	}

	// Size the read one byte past the limit so oversized bodies are
	// rejected without buffering the whole file.
	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return model.ImageJob{}, fmt.Errorf("upload: failed to read file: %w", err)
	}

	size := int64(len(data))
	switch {
	case size == 0:
		return model.ImageJob{}, ErrEmptyFile
	case size > MaxFileSize:
		return model.ImageJob{}, ErrFileTooLarge
	case declaredSize > 0 && declaredSize != size:
		return model.ImageJob{}, ErrSizeMismatch
	}

	j := model.ImageJob{
		ID:              uuid.New(),
		OriginalName:    filename,
		MimeType:        mimeType,
		FileSize:        size,
		Status:          model.StatusUploaded,
		EnhancementType: model.EnhancementGrayscale,
		UploadedAt:      time.Now().UTC(),
	}

	if err := s.storage.Save(ctx, file.NamespaceOriginal, j.ID.String(), bytes.NewReader(data), size, mimeType); err != nil {
		return model.ImageJob{}, fmt.Errorf("upload: failed to save original: %w", err)
	}

	if err := s.repo.Insert(ctx, j); err != nil {
		// Roll back the asset write: the record is the source of truth
		// and an unrecorded blob must not linger.
		if delErr := s.storage.Delete(ctx, file.NamespaceOriginal, j.ID.String()); delErr != nil {
			zlog.Logger.Err(delErr).Str("id", j.ID.String()).Msg("failed to roll back original asset")
		}

		return model.ImageJob{}, fmt.Errorf("upload: failed to save job record: %w", err)
	}

	s.publishUploaded(ctx, j.ID)

	return j, nil
}

// Enhance runs the transform for the job. The compare-and-set into
// Processing rejects a second concurrent call on the same id; re-invocation
// on a terminal job is a fresh attempt that overwrites the prior output.
// Any failure past the CAS marks the job Failed; it is never left
// Processing.
func (s *Service) Enhance(ctx context.Context, id uuid.UUID) (model.ImageJob, error) {
	j, err := s.repo.SetProcessing(ctx, id)
	if err != nil {
		return model.ImageJob{}, fmt.Errorf("enhance: %w", err)
	}

	src, err := s.storage.Load(ctx, file.NamespaceOriginal, id.String())
	if err != nil {
		return s.markFailed(ctx, j, 0, fmt.Errorf("enhance: failed to load original: %w", err))
	}
	defer src.Close()

	data, elapsed, err := s.processor.Process(src)
	if err != nil {
		return s.markFailed(ctx, j, elapsed, fmt.Errorf("enhance: %w: %v", ErrEnhanceFailed, err))
	}

	// The enhanced asset must be durable before the status flips to
	// Completed, so readers never see a Completed job without its output.
	if err := s.storage.Save(ctx, file.NamespaceEnhanced, id.String(), bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		return s.markFailed(ctx, j, elapsed, fmt.Errorf("enhance: failed to save enhanced: %w", err))
	}

	now := time.Now().UTC()
	seconds := elapsed.Seconds()
	j.Status = model.StatusCompleted
	j.EnhancedAt = &now
	j.ProcessingTime = &seconds

	if err := s.repo.Update(ctx, j); err != nil {
		return model.ImageJob{}, fmt.Errorf("enhance: failed to update job record: %w", err)
	}

	return j, nil
}

// History returns all jobs, most recently uploaded first. A point-in-time
// snapshot, not a subscription.
func (s *Service) History(ctx context.Context) ([]model.ImageJob, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return jobs, nil
}

// Open returns the job record and a reader over the asset in the given
// namespace. The enhanced namespace is only readable once the job is
// Completed; a job mid-transition reports the output as not available
// rather than serving a partial write.
func (s *Service) Open(ctx context.Context, id uuid.UUID, namespace string) (model.ImageJob, io.ReadCloser, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.ImageJob{}, nil, fmt.Errorf("open: %w", err)
	}

	if namespace == file.NamespaceEnhanced && j.Status != model.StatusCompleted {
		return model.ImageJob{}, nil, fmt.Errorf("open: %w", ErrNotEnhanced)
	}

	src, err := s.storage.Load(ctx, namespace, id.String())
	if err != nil {
		return model.ImageJob{}, nil, fmt.Errorf("open: %w", err)
	}

	return j, src, nil
}

// Download returns the enhanced bytes together with the job so the handler
// can derive the attachment filename. Requires a Completed job.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (model.ImageJob, io.ReadCloser, error) {
	return s.Open(ctx, id, file.NamespaceEnhanced)
}

// markFailed moves the job into the Failed state, recording the best-effort
// duration and completion time, and returns the original cause. Any
// enhanced asset from an earlier completed run is deleted: the enhanced
// blob exists only while the job is Completed.
func (s *Service) markFailed(ctx context.Context, j model.ImageJob, elapsed time.Duration, cause error) (model.ImageJob, error) {
	if err := s.storage.Delete(ctx, file.NamespaceEnhanced, j.ID.String()); err != nil {
		zlog.Logger.Err(err).Str("id", j.ID.String()).Msg("failed to delete stale enhanced asset")
	}

	now := time.Now().UTC()
	seconds := elapsed.Seconds()
	j.Status = model.StatusFailed
	j.EnhancedAt = &now
	j.ProcessingTime = &seconds

	if err := s.repo.Update(ctx, j); err != nil {
		zlog.Logger.Err(err).Str("id", j.ID.String()).Msg("failed to mark job as failed")
	}

	return model.ImageJob{}, cause
}

// publishUploaded publishes the upload event if a producer is configured.
// Publish failures are logged, not surfaced: the upload itself is already
// committed and remains valid.
func (s *Service) publishUploaded(ctx context.Context, id uuid.UUID) {
	if s.producer == nil {
		return
	}

	if err := s.producer.Produce(ctx, model.UploadedEvent{ID: id}); err != nil {
		zlog.Logger.Err(err).Str("id", id.String()).Msg("failed to publish uploaded event")
	}
}

// IsValidationError reports whether err is one of the upload validation
// failures, letting the API layer map them to a 400 without enumerating
// each sentinel.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrSizeMismatch)
}
