package matting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	inputName  = "input"
	outputName = "output"
)

var envMu sync.Mutex

// initEnvironment loads the shared library once per process. A failed
// attempt is retried on the next call.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}
	return nil
}

// ONNXRuntime runs the network through ONNX Runtime.
type ONNXRuntime struct {
	session *ort.DynamicAdvancedSession
}

// NewONNXLoader returns a Loader that downloads the model from ModelURL and
// builds an in-memory session from it.
func NewONNXLoader(libPath string, client *http.Client) Loader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return func(ctx context.Context, modelID string, opts LoadOptions) (Runtime, error) {
		if opts.DType != DTypeFP32 {
			return nil, fmt.Errorf("unsupported dtype %q", opts.DType)
		}
		if err := initEnvironment(libPath); err != nil {
			return nil, err
		}

		start := time.Now()
		data, err := downloadModel(ctx, client, ModelURL)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"model":       modelID,
			"bytes":       len(data),
			"download_ms": time.Since(start).Milliseconds(),
		}).Info("Model downloaded")

		sessionOpts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer sessionOpts.Destroy()
		if opts.IntraOpThreads > 0 {
			if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
				return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
			}
		}

		session, err := ort.NewDynamicAdvancedSessionWithONNXData(
			data,
			[]string{inputName},
			[]string{outputName},
			sessionOpts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create onnx session: %w", err)
		}
		return &ONNXRuntime{session: session}, nil
	}
}

// Infer runs one forward pass. The returned tensor is a copy owned by the caller.
func (r *ONNXRuntime) Infer(ctx context.Context, input *Tensor) (*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input tensor: %w", err)
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() { _ = in.Destroy() }()

	outs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if outs[0] == nil {
		return nil, fmt.Errorf("%w: no output from model", ErrMalformedOutput)
	}
	defer func() { _ = outs[0].Destroy() }()

	out, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: output is %T", ErrMalformedOutput, outs[0])
	}

	shape := out.GetShape()
	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())
	return &Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

// Close releases the session.
func (r *ONNXRuntime) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Destroy()
}

// downloadModel fetches the model bytes, retrying server errors up to three times.
func downloadModel(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		data, retry, err := fetch(ctx, client, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, fmt.Errorf("failed to download model: %w", lastErr)
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid model URL: %w", err)
	}
	req.Header.Set("User-Agent", "bg-removal/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read model body: %w", err)
	}
	return data, false, nil
}
