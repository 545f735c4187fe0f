package container

import (
	"fmt"
	"net/http"

	"github.com/JSFTI/bg-removal/internal/config"
	"github.com/JSFTI/bg-removal/internal/factory"
	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/JSFTI/bg-removal/internal/matting"
	"github.com/JSFTI/bg-removal/internal/observer"
	"github.com/JSFTI/bg-removal/internal/service"
	"github.com/JSFTI/bg-removal/internal/storage"
	"github.com/JSFTI/bg-removal/internal/transport"
	"github.com/JSFTI/bg-removal/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config         *config.Config
	session        *matting.Session
	pool           *service.WorkerPool
	store          storage.ArtifactStore
	janitor        *storage.Janitor
	metrics        *observer.MetricsObserver
	removalService service.BackgroundRemovalService
	handler        http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	return newContainer(cfg, factory.NewComponentFactory())
}

func newContainer(cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	store, err := components.StorageFactory.CreateStorage(cfg.Diagnostics)
	if err != nil {
		return nil, fmt.Errorf("failed to create diagnostics storage: %w", err)
	}

	var janitor *storage.Janitor
	if cfg.Diagnostics.Retention > 0 && cfg.Diagnostics.Backend != config.StorageNone {
		janitor, err = storage.NewJanitor(store, cfg.Diagnostics.Retention, cfg.Diagnostics.PruneSchedule)
		if err != nil {
			return nil, err
		}
	}

	session := matting.NewSession(
		components.RuntimeFactory.CreateLoader(cfg.OnnxRuntimeLib),
		matting.LoadOptions{DType: matting.DTypeFP32, IntraOpThreads: cfg.IntraOpThreads},
		cfg.ModelLoadTimeout,
	)

	pool := service.NewWorkerPool(cfg.Workers)

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	removalService := service.NewBackgroundRemovalService(
		session,
		pool,
		store,
		validation.NewUploadValidator(cfg.MaxUploadSize),
		events,
		service.Options{ProcessingTimeout: cfg.ProcessingTimeout, MaxPixels: cfg.MaxPixels},
	)
	handler := transport.NewHandler(removalService, metrics, pool, cfg)

	return &Container{
		config:         cfg,
		session:        session,
		pool:           pool,
		store:          store,
		janitor:        janitor,
		metrics:        metrics,
		removalService: removalService,
		handler:        handler,
	}, nil
}

// Start launches background workers
func (c *Container) Start() {
	c.pool.Start()
	if c.janitor != nil {
		c.janitor.Start()
	}
}

// Close stops background workers and releases the model runtime
func (c *Container) Close() error {
	if c.janitor != nil {
		c.janitor.Stop()
	}
	c.pool.Close()
	c.pool.Wait()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to release model runtime: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Session returns the process-wide model session
func (c *Container) Session() *matting.Session {
	return c.session
}
