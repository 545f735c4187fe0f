package config

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageAzure = "azure"
	StorageNone  = "none"
)

type Config struct {
	Host              string
	Port              string
	APIKey            string
	GinMode           string
	LogLevel          string
	RequestTimeout    time.Duration
	ProcessingTimeout time.Duration
	ModelLoadTimeout  time.Duration
	MaxUploadSize     int64
	MaxPixels         int
	Workers           int

	// ONNX Runtime
	OnnxRuntimeLib string
	IntraOpThreads int

	Diagnostics DiagnosticsConfig
}

type DiagnosticsConfig struct {
	Backend       string
	Dir           string
	Retention     time.Duration
	PruneSchedule string

	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "3001")
	v.SetDefault("api_key", "")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout", 90*time.Second)
	v.SetDefault("processing_timeout", 60*time.Second)
	v.SetDefault("model_load_timeout", 5*time.Minute)
	v.SetDefault("max_upload_size", 10*1024*1024) // 10MiB
	v.SetDefault("max_pixels", 40_000_000)
	v.SetDefault("workers", runtime.NumCPU())

	v.SetDefault("onnxruntime_lib", "libonnxruntime.so")
	v.SetDefault("intra_op_threads", 0)

	v.SetDefault("diagnostics_backend", StorageLocal)
	v.SetDefault("diagnostics_dir", "./logs")
	v.SetDefault("diagnostics_retention", time.Duration(0))
	v.SetDefault("diagnostics_prune_schedule", "@hourly")
	v.SetDefault("azure_storage_account", "")
	v.SetDefault("azure_storage_key", "")
	v.SetDefault("azure_storage_container", "bg-removal-diagnostics")
}

// LoadFromEnv reads configuration from the environment. When CONFIG_FILE
// is set the YAML file it names is read first and env vars override it.
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetString("port"),
		APIKey:            v.GetString("api_key"),
		GinMode:           v.GetString("gin_mode"),
		LogLevel:          v.GetString("log_level"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		ProcessingTimeout: v.GetDuration("processing_timeout"),
		ModelLoadTimeout:  v.GetDuration("model_load_timeout"),
		MaxUploadSize:     v.GetInt64("max_upload_size"),
		MaxPixels:         v.GetInt("max_pixels"),
		Workers:           v.GetInt("workers"),
		OnnxRuntimeLib:    v.GetString("onnxruntime_lib"),
		IntraOpThreads:    v.GetInt("intra_op_threads"),
		Diagnostics: DiagnosticsConfig{
			Backend:        strings.ToLower(strings.TrimSpace(v.GetString("diagnostics_backend"))),
			Dir:            v.GetString("diagnostics_dir"),
			Retention:      v.GetDuration("diagnostics_retention"),
			PruneSchedule:  v.GetString("diagnostics_prune_schedule"),
			AzureAccount:   v.GetString("azure_storage_account"),
			AzureKey:       v.GetString("azure_storage_key"),
			AzureContainer: v.GetString("azure_storage_container"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API_KEY must be set")
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("MAX_PIXELS must be > 0 (got %d)", c.MaxPixels)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be > 0 (got %d)", c.MaxUploadSize)
	}
	if c.RequestTimeout <= 0 || c.ProcessingTimeout <= 0 || c.ModelLoadTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, processing=%s, model_load=%s)",
			c.RequestTimeout, c.ProcessingTimeout, c.ModelLoadTimeout)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Diagnostics.Retention < 0 {
		return fmt.Errorf("DIAGNOSTICS_RETENTION must be >= 0 (got %s)", c.Diagnostics.Retention)
	}

	switch c.Diagnostics.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Diagnostics.Dir) == "" {
			return fmt.Errorf("DIAGNOSTICS_DIR must be set for the local backend")
		}
	case StorageAzure:
		if c.Diagnostics.AzureAccount == "" || c.Diagnostics.AzureKey == "" || c.Diagnostics.AzureContainer == "" {
			return fmt.Errorf("azure diagnostics backend needs AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_STORAGE_CONTAINER")
		}
	case StorageNone:
	default:
		return fmt.Errorf("unknown DIAGNOSTICS_BACKEND: %q", c.Diagnostics.Backend)
	}
	return nil
}
