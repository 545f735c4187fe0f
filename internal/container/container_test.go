package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JSFTI/bg-removal/internal/config"
	"github.com/JSFTI/bg-removal/internal/factory"
	"github.com/JSFTI/bg-removal/internal/matting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopRuntime struct{ closed bool }

func (r *nopRuntime) Infer(ctx context.Context, in *matting.Tensor) (*matting.Tensor, error) {
	return nil, matting.ErrMalformedOutput
}

func (r *nopRuntime) Close() error {
	r.closed = true
	return nil
}

type stubRuntimeFactory struct{ rt *nopRuntime }

func (f stubRuntimeFactory) CreateLoader(string) matting.Loader {
	return func(ctx context.Context, modelID string, opts matting.LoadOptions) (matting.Runtime, error) {
		return f.rt, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		APIKey:            "k",
		RequestTimeout:    time.Minute,
		ProcessingTimeout: time.Minute,
		ModelLoadTimeout:  time.Minute,
		MaxUploadSize:     1024,
		Workers:           1,
		Diagnostics: config.DiagnosticsConfig{
			Backend:       config.StorageLocal,
			Dir:           t.TempDir(),
			Retention:     time.Hour,
			PruneSchedule: "@hourly",
		},
	}
}

func TestContainer_Lifecycle(t *testing.T) {
	rt := &nopRuntime{}
	c, err := newContainer(testConfig(t), &factory.ComponentFactory{
		StorageFactory: factory.NewStorageFactory(),
		RuntimeFactory: stubRuntimeFactory{rt: rt},
	})
	require.NoError(t, err)
	require.NotNil(t, c.janitor)
	c.Start()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, c.Session().EnsureReady(context.Background()))
	require.NoError(t, c.Close())
	assert.True(t, rt.closed)
}

func TestContainer_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Diagnostics.PruneSchedule = "not a schedule"

	_, err := NewContainer(cfg)
	assert.Error(t, err)
}
