package config

import "time"

// ApplyDefaults fills every unset field of cfg with the platform default.
// Called by the loader after unmarshalling and before validation so that a
// minimal config file (portal URLs + results dir) is enough to run.
func ApplyDefaults(cfg *Config) {
	if cfg.Fetch.CacheDir == "" {
		cfg.Fetch.CacheDir = "cache/html"
	}
	if cfg.Fetch.RequestTimeout == 0 {
		cfg.Fetch.RequestTimeout = 30 * time.Second
	}
	if cfg.Fetch.MaxRetries == 0 {
		cfg.Fetch.MaxRetries = 3
	}
	if cfg.Fetch.InitialBackoff == 0 {
		cfg.Fetch.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.Fetch.MaxBackoff == 0 {
		cfg.Fetch.MaxBackoff = 5 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "humandbs-pipeline/1.0"
	}

	if cfg.Results.ConfigDir == "" {
		cfg.Results.ConfigDir = "config"
	}

	if cfg.Search.ResearchIndex == "" {
		cfg.Search.ResearchIndex = "research"
	}
	if cfg.Search.ResearchVersionIndex == "" {
		cfg.Search.ResearchVersionIndex = "research-version"
	}
	if cfg.Search.DatasetIndex == "" {
		cfg.Search.DatasetIndex = "dataset"
	}

	if cfg.Relation.CacheFile == "" {
		cfg.Relation.CacheFile = "cache/relation-cache.json"
	}
	if cfg.Relation.RequestTimeout == 0 {
		cfg.Relation.RequestTimeout = 10 * time.Second
	}
	if cfg.Relation.RedisTTL == 0 {
		cfg.Relation.RedisTTL = 24 * time.Hour
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "humandbs.document.updated"
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 5
	}
	if cfg.Worker.Max == 0 {
		cfg.Worker.Max = 16
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
