package config

import (
	"time"

	"github.com/c2h5oh/datasize"
)

type Duration struct {
	Duration time.Duration
}

type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key"`

	EnableTraining         bool `yaml:"enable_training"`
	EnableClassification   bool `yaml:"enable_classification"`
	EnableResourceDownload bool `yaml:"enable_resource_download"`

	ParallelJobs       int `yaml:"parallel_jobs"`
	CleanJobsAfterDays int `yaml:"clean_jobs_after_days"`

	// TLS is enabled when both are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// Metrics exposes /metrics and starts the store collector.
	Metrics bool `yaml:"metrics"`

	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// MaxUploadSize caps request bodies; accepts "512MB" or a byte count.
	MaxUploadSize datasize.ByteSize `yaml:"max_upload_size"`
}

type DataConfig struct {
	DBPath        string `yaml:"db_path"`
	LogPath       string `yaml:"log_path"`
	TempPath      string `yaml:"temp_path"`
	ResourcesPath string `yaml:"resources_path"`
	WorkPath      string `yaml:"work_path"`
}

// PeerConfig is one autosync source.
type PeerConfig struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	APIKey     string   `yaml:"api_key"`
	ModelTypes []string `yaml:"model_types"`
	Interval   Duration `yaml:"interval"`
	Grace      Duration `yaml:"grace"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

type ExportConfig struct {
	// Type is none, redis, postgres or amqp.
	Type          string `yaml:"type"`
	BatchSize     int    `yaml:"batch_size"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisStream   string `yaml:"redis_stream"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	PostgresTable string `yaml:"postgres_table"`
	AMQPURL       string `yaml:"amqp_url"`
	AMQPExchange  string `yaml:"amqp_exchange"`
	AMQPRouting   string `yaml:"amqp_routing_key"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
}

type Config struct {
	Env      string       `yaml:"env"`
	Server   ServerConfig `yaml:"server"`
	Data     DataConfig   `yaml:"data"`
	Autosync []PeerConfig `yaml:"autosync"`
	Export   ExportConfig `yaml:"export"`
	Otel     OtelConfig   `yaml:"otel"`
}

func (c *Config) TLSEnabled() bool { return c.Server.TLSCert != "" && c.Server.TLSKey != "" }
