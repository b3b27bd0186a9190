// Package config defines all configuration structures for the humandbs
// pipeline.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

// PortalConfig holds the source-portal endpoints.  The portal publishes each
// research page in Japanese and English under separate base URLs.
type PortalConfig struct {
	BaseURLJa string `mapstructure:"base_url_ja"`
	BaseURLEn string `mapstructure:"base_url_en"`
}

// FetchConfig holds crawler tunables.
type FetchConfig struct {
	// CacheDir is the content-addressed page cache directory (one file per
	// URL hash, append-only).
	CacheDir string `mapstructure:"cache_dir"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ResultsConfig locates the on-disk pipeline artifacts.
type ResultsConfig struct {
	// Dir is the results root; stages write detail-json/, normalized-json/
	// and structured-json/ beneath it.
	Dir string `mapstructure:"dir"`

	// ConfigDir holds the fixed-schema mapping files (crawl-hotfix-mapping,
	// dataset-id-mapping, normalize-mapping, moldata-field-mapping,
	// dataset-overrides) plus facet-mappings/ and icd10-labels.json.
	ConfigDir string `mapstructure:"config_dir"`
}

// SearchConfig holds the search-engine connection and index names.
type SearchConfig struct {
	Addresses            []string `mapstructure:"addresses"`
	Username             string   `mapstructure:"username"`
	Password             string   `mapstructure:"password"`
	ResearchIndex        string   `mapstructure:"research_index"`
	ResearchVersionIndex string   `mapstructure:"research_version_index"`
	DatasetIndex         string   `mapstructure:"dataset_index"`
}

// RelationConfig holds the study→dataset relation-service settings.
type RelationConfig struct {
	Endpoint string `mapstructure:"endpoint"`

	// CacheFile is the persisted JSON map of prior lookups; it is read at
	// stage start and flushed once at stage teardown.
	CacheFile string `mapstructure:"cache_file"`

	// RedisAddr, when non-empty, enables a shared read-through cache tier in
	// front of the service (useful when several pipelines run concurrently).
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// KafkaConfig holds the optional document-event producer settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SnapshotConfig holds the optional raw-HTML snapshot mirror settings.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// WorkerConfig bounds stage concurrency.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	Max         int `mapstructure:"max"`
}

// ServerConfig holds search-API server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config is the root configuration structure.
type Config struct {
	Portal   PortalConfig   `mapstructure:"portal"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Results  ResultsConfig  `mapstructure:"results"`
	Search   SearchConfig   `mapstructure:"search"`
	Relation RelationConfig `mapstructure:"relation"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      logging.Config `mapstructure:"log"`

	// AdminUIDFile lists administrator user IDs, one per line.
	AdminUIDFile string `mapstructure:"admin_uid_file"`
}

// Validate performs semantic validation of a fully-populated Config.  It
// returns the first error encountered; any error is fatal and the process
// must refuse to start.
func (c *Config) Validate() error {
	if c.Portal.BaseURLJa == "" {
		return fmt.Errorf("config: portal.base_url_ja is required")
	}
	if c.Portal.BaseURLEn == "" {
		return fmt.Errorf("config: portal.base_url_en is required")
	}
	if c.Fetch.CacheDir == "" {
		return fmt.Errorf("config: fetch.cache_dir is required")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("config: fetch.max_retries must be ≥ 0, got %d", c.Fetch.MaxRetries)
	}
	if c.Results.Dir == "" {
		return fmt.Errorf("config: results.dir is required")
	}
	if c.Results.ConfigDir == "" {
		return fmt.Errorf("config: results.config_dir is required")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("config: search.addresses must contain at least one address")
	}
	for _, name := range []struct{ key, val string }{
		{"search.research_index", c.Search.ResearchIndex},
		{"search.research_version_index", c.Search.ResearchVersionIndex},
		{"search.dataset_index", c.Search.DatasetIndex},
	} {
		if name.val == "" {
			return fmt.Errorf("config: %s is required", name.key)
		}
	}
	if c.Relation.Endpoint == "" {
		return fmt.Errorf("config: relation.endpoint is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
	}
	if c.Snapshot.Enabled && c.Snapshot.Endpoint == "" {
		return fmt.Errorf("config: snapshot.endpoint is required when the snapshot mirror is enabled")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.Max < c.Worker.Concurrency {
		return fmt.Errorf("config: worker.max (%d) must be ≥ worker.concurrency (%d)", c.Worker.Max, c.Worker.Concurrency)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	return nil
}
