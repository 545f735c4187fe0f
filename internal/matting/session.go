package matting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/JSFTI/bg-removal/internal/codec"
	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrModelUnavailable wraps any failure to provision the model.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrNotReady is returned when inference is attempted before EnsureReady succeeded.
var ErrNotReady = errors.New("model session not ready")

type sessionState struct {
	runtime   Runtime
	processor ProcessorConfig
}

// Session is the process-wide model cache. The runtime is built lazily on
// the first EnsureReady and shared read-only afterwards.
type Session struct {
	modelID     string
	opts        LoadOptions
	loader      Loader
	loadTimeout time.Duration

	group singleflight.Group
	state atomic.Pointer[sessionState]
	loads atomic.Int64
}

// NewSession creates an unprovisioned session.
func NewSession(loader Loader, opts LoadOptions, loadTimeout time.Duration) *Session {
	if opts.DType == "" {
		opts.DType = DTypeFP32
	}
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Minute
	}
	return &Session{
		modelID:     ModelID,
		opts:        opts,
		loader:      loader,
		loadTimeout: loadTimeout,
	}
}

// Ready reports whether the runtime has been provisioned.
func (s *Session) Ready() bool {
	return s.state.Load() != nil
}

// Loads returns the number of successful runtime constructions.
func (s *Session) Loads() int64 {
	return s.loads.Load()
}

// EnsureReady provisions the runtime if needed. Concurrent callers share a
// single in-flight construction; each waits only as long as its own ctx allows.
// The construction itself is bounded by the session's load timeout, not by
// the first caller's context.
func (s *Session) EnsureReady(ctx context.Context) error {
	if s.Ready() {
		return nil
	}

	ch := s.group.DoChan("provision", func() (interface{}, error) {
		if st := s.state.Load(); st != nil {
			return st, nil
		}
		return s.provision(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (s *Session) provision(ctx context.Context) (*sessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	start := time.Now()
	fields := logrus.Fields{"model": s.modelID, "dtype": s.opts.DType}
	logger.WithFields(fields).Info("Provisioning model")

	processor := DefaultProcessorConfig()
	if err := processor.Validate(); err != nil {
		logger.WithError(err).WithFields(fields).Error("Invalid processor configuration")
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	rt, err := s.loader(ctx, s.modelID, s.opts)
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("Model provisioning failed")
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if rt == nil {
		return nil, fmt.Errorf("%w: loader returned no runtime", ErrModelUnavailable)
	}

	st := &sessionState{runtime: rt, processor: processor}
	s.state.Store(st)
	s.loads.Add(1)

	fields["load_ms"] = time.Since(start).Milliseconds()
	logger.WithFields(fields).Info("Model ready")
	return st, nil
}

// Preprocess converts a raster with the session's fixed processor config.
func (s *Session) Preprocess(img *codec.RasterImage) (*Tensor, error) {
	st := s.state.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	return Preprocess(img, st.processor)
}

// Infer runs the network and returns batch 0 of its output as a byte matte.
func (s *Session) Infer(ctx context.Context, input *Tensor) (*AlphaMask, error) {
	st := s.state.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	out, err := st.runtime.Infer(ctx, input)
	if err != nil {
		return nil, err
	}
	return MatteFromTensor(out)
}

// Close releases the runtime. Only called at process shutdown.
func (s *Session) Close() error {
	st := s.state.Swap(nil)
	if st == nil {
		return nil
	}
	return st.runtime.Close()
}
