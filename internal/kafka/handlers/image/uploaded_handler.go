package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/medview/image-enhancer/internal/model"
	"github.com/medview/image-enhancer/internal/repository/job"
)

// service defines the interface for triggering an enhancement.
type service interface {
	Enhance(ctx context.Context, id uuid.UUID) (model.ImageJob, error)
}

// UploadedHandler consumes uploaded-image events and kicks off the
// enhancement for each one, so freshly uploaded images are enhanced
// without the client having to ask.
type UploadedHandler struct {
	service service
}

// NewUploadedHandler creates a new handler with the given service.
func NewUploadedHandler(s service) *UploadedHandler {
	return &UploadedHandler{service: s}
}

// Handle processes one uploaded-image event. A job already mid-enhancement
// lost the race to a manual enhance call and is skipped; a processing
// failure is already recorded on the job, so neither is retried.
func (h *UploadedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var e model.UploadedEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	j, err := h.service.Enhance(ctx, e.ID)
	if err != nil {
		if errors.Is(err, job.ErrJobProcessing) {
			zlog.Logger.Info().Str("id", e.ID.String()).Msg("enhancement already in flight, skipping event")
			return nil
		}
		if errors.Is(err, job.ErrJobNotFound) {
			return fmt.Errorf("enhance: %w", job.ErrJobNotFound)
		}

		zlog.Logger.Err(err).Str("id", e.ID.String()).Msg("enhancement failed, job marked failed")
		return nil
	}

	zlog.Logger.Printf("image enhanced: %s", j.ID)

	return nil
}
