package factory

import (
	"fmt"
	"net/http"

	"github.com/JSFTI/bg-removal/internal/config"
	"github.com/JSFTI/bg-removal/internal/matting"
	"github.com/JSFTI/bg-removal/internal/storage"
)

// StorageFactory creates diagnostics stores
type StorageFactory interface {
	CreateStorage(cfg config.DiagnosticsConfig) (storage.ArtifactStore, error)
}

// RuntimeFactory creates model loaders
type RuntimeFactory interface {
	CreateLoader(libPath string) matting.Loader
}

// storageFactory implements StorageFactory
type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateStorage creates a store for the configured backend
func (f *storageFactory) CreateStorage(cfg config.DiagnosticsConfig) (storage.ArtifactStore, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return storage.NewLocalStore(cfg.Dir), nil
	case config.StorageAzure:
		return storage.NewAzureStore(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	case config.StorageNone:
		return storage.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}

// onnxRuntimeFactory implements RuntimeFactory
type onnxRuntimeFactory struct {
	client *http.Client
}

// NewRuntimeFactory creates a factory for ONNX Runtime loaders. A nil
// client uses the loader's default.
func NewRuntimeFactory(client *http.Client) RuntimeFactory {
	return &onnxRuntimeFactory{client: client}
}

func (f *onnxRuntimeFactory) CreateLoader(libPath string) matting.Loader {
	return matting.NewONNXLoader(libPath, f.client)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory StorageFactory
	RuntimeFactory RuntimeFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		StorageFactory: NewStorageFactory(),
		RuntimeFactory: NewRuntimeFactory(nil),
	}
}
