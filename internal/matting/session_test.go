package matting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JSFTI/bg-removal/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRuntime struct {
	out    *Tensor
	err    error
	closed atomic.Bool
}

func (r *stubRuntime) Infer(ctx context.Context, input *Tensor) (*Tensor, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

func (r *stubRuntime) Close() error {
	r.closed.Store(true)
	return nil
}

func TestSession_SingleFlightProvisioning(t *testing.T) {
	var constructions atomic.Int32
	release := make(chan struct{})

	loader := func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error) {
		constructions.Add(1)
		<-release
		return &stubRuntime{}, nil
	}
	s := NewSession(loader, LoadOptions{}, time.Minute)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureReady(context.Background())
		}()
	}

	// let every caller reach the in-flight load before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), constructions.Load())
	assert.Equal(t, int64(1), s.Loads())
	assert.True(t, s.Ready())

	require.NoError(t, s.EnsureReady(context.Background()))
	assert.Equal(t, int32(1), constructions.Load(), "ready session must not reload")
}

func TestSession_FailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	loader := func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("network down")
		}
		return &stubRuntime{}, nil
	}
	s := NewSession(loader, LoadOptions{}, time.Minute)

	err := s.EnsureReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, s.Ready())

	require.NoError(t, s.EnsureReady(context.Background()))
	assert.True(t, s.Ready())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSession_LoaderReceivesFixedOptions(t *testing.T) {
	var gotModel string
	var gotOpts LoadOptions
	loader := func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error) {
		gotModel, gotOpts = modelID, opts
		return &stubRuntime{}, nil
	}
	s := NewSession(loader, LoadOptions{IntraOpThreads: 2}, time.Minute)

	require.NoError(t, s.EnsureReady(context.Background()))
	assert.Equal(t, "briaai/RMBG-1.4", gotModel)
	assert.Equal(t, DTypeFP32, gotOpts.DType)
	assert.Equal(t, 2, gotOpts.IntraOpThreads)
}

func TestSession_WaiterHonoursOwnContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	loader := func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error) {
		<-release
		return &stubRuntime{}, nil
	}
	s := NewSession(loader, LoadOptions{}, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.EnsureReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Ready())
}

func TestSession_NotReady(t *testing.T) {
	s := NewSession(nil, LoadOptions{}, time.Minute)

	_, err := s.Preprocess(&codec.RasterImage{Width: 1, Height: 1, Channels: 3, Pix: []byte{0, 0, 0}})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = s.Infer(context.Background(), NewTensor(1, 3, 1, 1))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_InferAndClose(t *testing.T) {
	rt := &stubRuntime{out: &Tensor{Shape: []int64{1, 1, 1, 2}, Data: []float32{1, 0}}}
	s := NewSession(func(context.Context, string, LoadOptions) (Runtime, error) { return rt, nil }, LoadOptions{}, time.Minute)
	require.NoError(t, s.EnsureReady(context.Background()))

	mask, err := s.Infer(context.Background(), NewTensor(1, 3, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0}, mask.Pix)

	require.NoError(t, s.Close())
	assert.True(t, rt.closed.Load())
	assert.False(t, s.Ready())
}

func TestDownloadModel(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("onnx-bytes"))
	}))
	defer server.Close()

	data, err := downloadModel(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
	assert.Equal(t, int32(2), requests.Load())
}

func TestDownloadModel_ClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := downloadModel(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 404")
	assert.Equal(t, int32(1), requests.Load())
}
