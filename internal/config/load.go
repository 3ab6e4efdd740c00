package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/classr/internal/platform/envutil"
)

const (
	DefaultAutosyncInterval = 24 * time.Hour
	DefaultAutosyncGrace    = 7 * time.Second
)

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	s := strings.TrimSpace(n.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if n.Tag == "!!int" {
		var secs int64
		if err := n.Decode(&secs); err != nil {
			return err
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: duration must be like \"6h\" or an int of seconds: %w", n.Line, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.Duration.String(), nil }

func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:                   "127.0.0.1:8080",
			EnableTraining:         true,
			EnableClassification:   true,
			EnableResourceDownload: true,
			ParallelJobs:           2,
			Metrics:                true,
			ShutdownTimeout:        Duration{Duration: 15 * time.Second},
			MaxUploadSize:          512 * datasize.MB,
		},
		Data: DataConfig{
			DBPath:        filepath.Join("data", "classr.db"),
			LogPath:       "logs",
			TempPath:      os.TempDir(),
			ResourcesPath: filepath.Join("data", "resources"),
			WorkPath:      filepath.Join("data", "work"),
		},
		Export: ExportConfig{
			Type:          "none",
			BatchSize:     1000,
			RedisStream:   "classr:results",
			PostgresTable: "classification_results",
			AMQPExchange:  "classr.results",
			AMQPRouting:   "classified",
		},
		Otel: OtelConfig{
			ServiceName: "classr",
			SampleRatio: 0.1,
		},
	}
}

// Load layers config/defaults.yaml, config/<hostname>.yaml and the file named
// by CLASSR_CONFIG_PATH over the built-in defaults, then applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	var files []string
	if wd, err := os.Getwd(); err == nil {
		files = append(files, filepath.Join(wd, "config", "defaults.yaml"))
		if host, err := os.Hostname(); err == nil && host != "" {
			files = append(files, filepath.Join(wd, "config", host+".yaml"))
		}
	}
	for _, p := range files {
		if err := mergeFile(cfg, p, true); err != nil {
			return nil, err
		}
	}
	if p := strings.TrimSpace(os.Getenv("CLASSR_CONFIG_PATH")); p != "" {
		if err := mergeFile(cfg, p, false); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes one YAML document over the defaults and validates it.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, optional bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.Server.Addr = envutil.String("CLASSR_ADDR", cfg.Server.Addr)
	cfg.Server.APIKey = envutil.String("CLASSR_API_KEY", cfg.Server.APIKey)
	cfg.Server.ParallelJobs = envutil.Int("CLASSR_PARALLEL_JOBS", cfg.Server.ParallelJobs)
	cfg.Server.CleanJobsAfterDays = envutil.Int("CLASSR_CLEAN_JOBS_AFTER_DAYS", cfg.Server.CleanJobsAfterDays)
	cfg.Data.DBPath = envutil.String("CLASSR_DB_PATH", cfg.Data.DBPath)
	cfg.Export.RedisPassword = envutil.String("CLASSR_EXPORT_REDIS_PASSWORD", cfg.Export.RedisPassword)
	cfg.Export.PostgresDSN = envutil.String("CLASSR_EXPORT_POSTGRES_DSN", cfg.Export.PostgresDSN)
	cfg.Export.AMQPURL = envutil.String("CLASSR_EXPORT_AMQP_URL", cfg.Export.AMQPURL)
	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
}

// Validate normalizes cfg in place and reports the first invalid setting.
func (c *Config) Validate() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	for _, f := range []string{c.Server.TLSCert, c.Server.TLSKey} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file %s: %w", f, err)
		}
	}
	if c.Server.ParallelJobs < 1 {
		return fmt.Errorf("server.parallel_jobs must be >= 1, got %d", c.Server.ParallelJobs)
	}
	if c.Server.CleanJobsAfterDays < 0 {
		return fmt.Errorf("server.clean_jobs_after_days must be >= 0, got %d", c.Server.CleanJobsAfterDays)
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		c.Server.ShutdownTimeout.Duration = 15 * time.Second
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = 512 * datasize.MB
	}
	for name, p := range map[string]string{
		"data.db_path":        c.Data.DBPath,
		"data.resources_path": c.Data.ResourcesPath,
		"data.work_path":      c.Data.WorkPath,
	} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if strings.TrimSpace(c.Data.TempPath) == "" {
		c.Data.TempPath = os.TempDir()
	}

	names := map[string]bool{}
	for i := range c.Autosync {
		p := &c.Autosync[i]
		p.URL = strings.TrimRight(strings.TrimSpace(p.URL), "/")
		if p.URL == "" {
			return fmt.Errorf("autosync[%d].url is required", i)
		}
		if u, err := url.Parse(p.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("autosync[%d].url %q is not an absolute url", i, p.URL)
		}
		if strings.TrimSpace(p.Name) == "" {
			p.Name = p.URL
		}
		if names[p.Name] {
			return fmt.Errorf("autosync peer %q configured twice", p.Name)
		}
		names[p.Name] = true
		if p.Interval.Duration <= 0 {
			p.Interval.Duration = DefaultAutosyncInterval
		}
		if p.Grace.Duration <= 0 {
			p.Grace.Duration = DefaultAutosyncGrace
		}
		if p.MaxRetries < 0 {
			return fmt.Errorf("autosync[%d].max_retries must be >= 0", i)
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 2
		}
	}

	c.Export.Type = strings.ToLower(strings.TrimSpace(c.Export.Type))
	switch c.Export.Type {
	case "", "none":
		c.Export.Type = "none"
	case "redis":
		if strings.TrimSpace(c.Export.RedisAddr) == "" {
			return errors.New("export.redis_addr is required for export.type=redis")
		}
	case "postgres":
		if strings.TrimSpace(c.Export.PostgresDSN) == "" {
			return errors.New("export.postgres_dsn is required for export.type=postgres")
		}
	case "amqp":
		if strings.TrimSpace(c.Export.AMQPURL) == "" {
			return errors.New("export.amqp_url is required for export.type=amqp")
		}
	default:
		return fmt.Errorf("export.type %q must be none, redis, postgres or amqp", c.Export.Type)
	}
	if c.Export.BatchSize <= 0 {
		c.Export.BatchSize = 1000
	}

	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0, 1], got %v", c.Otel.SampleRatio)
	}
	return nil
}
