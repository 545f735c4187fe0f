package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JSFTI/bg-removal/internal/codec"
	apperrors "github.com/JSFTI/bg-removal/internal/errors"
	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/JSFTI/bg-removal/internal/matting"
	"github.com/JSFTI/bg-removal/internal/observer"
	"github.com/JSFTI/bg-removal/internal/storage"
	"github.com/JSFTI/bg-removal/pkg/validation"
	"github.com/sirupsen/logrus"
)

// Upload is one image submitted for background removal
type Upload struct {
	RequestID   string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the transparent PNG produced for an upload
type Result struct {
	PNG      []byte
	Width    int
	Height   int
	Duration time.Duration
}

// BackgroundRemovalService defines the request pipeline
type BackgroundRemovalService interface {
	RemoveBackground(ctx context.Context, upload Upload) (*Result, error)
	ListDurations(ctx context.Context) ([]float64, error)
	Ready() bool
}

// Options configures a backgroundRemovalService.
type Options struct {
	ProcessingTimeout time.Duration
	MaxPixels         int
}

type backgroundRemovalService struct {
	session   *matting.Session
	pool      *WorkerPool
	store     storage.ArtifactStore
	validator *validation.UploadValidator
	events    observer.Subject
	opts      Options
}

// NewBackgroundRemovalService creates the request orchestrator
func NewBackgroundRemovalService(
	session *matting.Session,
	pool *WorkerPool,
	store storage.ArtifactStore,
	validator *validation.UploadValidator,
	events observer.Subject,
	opts Options,
) BackgroundRemovalService {
	if store == nil {
		store = storage.NoopStore{}
	}
	if events == nil {
		events = observer.NewEventPublisher()
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 60 * time.Second
	}
	return &backgroundRemovalService{
		session:   session,
		pool:      pool,
		store:     store,
		validator: validator,
		events:    events,
		opts:      opts,
	}
}

func (s *backgroundRemovalService) Ready() bool {
	return s.session.Ready()
}

// ListDurations returns recorded processing times in seconds, oldest first.
func (s *backgroundRemovalService) ListDurations(ctx context.Context) ([]float64, error) {
	durations, err := s.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list processing durations", err)
	}
	return durations, nil
}

// RemoveBackground validates the upload, makes sure the model is loaded,
// then decodes, segments and re-encodes the image. Nothing is returned
// unless every stage succeeds.
func (s *backgroundRemovalService) RemoveBackground(ctx context.Context, upload Upload) (*Result, error) {
	started := time.Now()
	s.events.NotifyObservers(ctx, observer.RemovalEvent{
		EventType: observer.RemovalStarted,
		RequestID: upload.RequestID,
		Metadata: map[string]interface{}{
			"filename":     upload.Filename,
			"content_type": upload.ContentType,
			"size":         len(upload.Data),
		},
	})

	result, err := s.removeBackground(ctx, upload)
	if err != nil {
		s.fail(ctx, upload.RequestID, time.Since(started), err)
		return nil, err
	}

	s.events.NotifyObservers(ctx, observer.RemovalEvent{
		EventType:      observer.RemovalCompleted,
		RequestID:      upload.RequestID,
		ProcessingTime: result.Duration,
		Success:        true,
		Metadata: map[string]interface{}{
			"width":  result.Width,
			"height": result.Height,
		},
	})
	return result, nil
}

func (s *backgroundRemovalService) removeBackground(ctx context.Context, upload Upload) (*Result, error) {
	if err := s.validator.ValidateUpload(int64(len(upload.Data)), upload.ContentType); err != nil {
		return nil, err
	}

	if err := s.session.EnsureReady(ctx); err != nil {
		if ctxErr := contextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewModelUnavailableError("background removal model is unavailable", err)
	}

	img, err := codec.Decode(upload.Data, s.opts.MaxPixels)
	if err != nil {
		if errors.Is(err, codec.ErrTooManyPixels) {
			return nil, apperrors.NewInvalidUploadError("image dimensions exceed maximum pixel count", err).
				WithStatus(http.StatusRequestEntityTooLarge)
		}
		return nil, apperrors.NewDecodeFailedError("failed to decode image", err)
	}

	start := time.Now()
	rgba, err := s.segment(ctx, img)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	png, err := codec.EncodePNG(rgba, img.Width, img.Height)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode result", err)
	}

	s.record(ctx, upload.RequestID, duration, png)

	return &Result{PNG: png, Width: img.Width, Height: img.Height, Duration: duration}, nil
}

// segment runs preprocessing, inference and compositing on the worker pool
// under the processing timeout.
func (s *backgroundRemovalService) segment(ctx context.Context, img *codec.RasterImage) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProcessingTimeout)
	defer cancel()

	var rgba []byte
	err := s.pool.Do(ctx, func() error {
		var err error
		rgba, err = s.pipeline(ctx, img)
		return err
	})
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		if ctxErr := contextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrPoolClosed) {
			return nil, apperrors.NewModelUnavailableError("service is shutting down", err)
		}
		return nil, apperrors.NewInternalError("image processing failed", err)
	}
	return rgba, nil
}

// pipeline returns at the first stage boundary after ctx is done.
func (s *backgroundRemovalService) pipeline(ctx context.Context, img *codec.RasterImage) ([]byte, error) {
	tensor, err := s.session.Preprocess(img)
	if err != nil {
		return nil, stageError(err, "failed to preprocess image")
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	mask, err := s.session.Infer(ctx, tensor)
	if err != nil {
		if ctxErr := contextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewInferenceFailedError("model inference failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	mask, err = matting.ResizeMatte(mask, img.Width, img.Height)
	if err != nil {
		return nil, apperrors.NewCompositeFailedError("failed to resize alpha matte", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	rgba, err := matting.Composite(img, mask)
	if err != nil {
		return nil, stageError(err, "failed to composite alpha matte")
	}
	return rgba, nil
}

func (s *backgroundRemovalService) record(ctx context.Context, requestID string, duration time.Duration, png []byte) {
	event := observer.RemovalEvent{
		EventType:      observer.ArtifactRecorded,
		RequestID:      requestID,
		ProcessingTime: duration,
		Success:        true,
	}
	if err := s.store.Record(ctx, duration, png); err != nil {
		event.EventType = observer.ArtifactFailed
		event.Success = false
		event.ErrorMessage = err.Error()
	}
	s.events.NotifyObservers(ctx, event)
}

func (s *backgroundRemovalService) fail(ctx context.Context, requestID string, elapsed time.Duration, err error) {
	event := observer.RemovalEvent{
		EventType:      observer.RemovalFailed,
		RequestID:      requestID,
		ProcessingTime: elapsed,
		ErrorType:      string(apperrors.ErrorTypeInternal),
		ErrorMessage:   err.Error(),
	}
	if appErr, ok := apperrors.As(err); ok {
		event.ErrorType = string(appErr.Type)
		if appErr.Type == apperrors.ErrorTypeCompositeFailed {
			logger.WithError(err).WithFields(logrus.Fields{
				"request_id": requestID,
			}).Error("Alpha matte does not match decoded image")
		}
	}
	s.events.NotifyObservers(ctx, event)
}

// stageError maps a matting sentinel to the error type the client sees.
func stageError(err error, message string) error {
	switch {
	case errors.Is(err, matting.ErrUnsupportedChannels):
		return apperrors.NewUnsupportedImageFormatError("image channel layout is not supported", err)
	case errors.Is(err, matting.ErrMaskMismatch), errors.Is(err, matting.ErrInvalidRaster):
		return apperrors.NewCompositeFailedError(message, err)
	case errors.Is(err, matting.ErrNotReady):
		return apperrors.NewModelUnavailableError("background removal model is unavailable", err)
	default:
		return apperrors.NewInternalError(message, err)
	}
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("image processing timed out", err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewTimeoutError("request cancelled", err)
	default:
		return nil
	}
}
