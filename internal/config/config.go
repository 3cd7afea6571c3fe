package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"urlguard/internal/features"
)

// Constants for configuration
const (
	DefaultConfigPath = "/etc/urlguard/config.yaml"
	DefaultDBPath     = "/var/lib/urlguard/urlguard.db"
)

var searchPaths = []string{
	"configs/config.yaml",
	"./config.yaml",
	DefaultConfigPath,
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Network  NetworkConfig  `yaml:"network"`
	Features FeaturesConfig `yaml:"features"`
	Blocking BlockingConfig `yaml:"blocking"`
	AI       AIConfig       `yaml:"ai"`
	Batch    BatchConfig    `yaml:"batch"`
}

type AppConfig struct {
	DBPath         string `yaml:"db_path"`
	LogLevel       string `yaml:"log_level"`
	UpdateInterval int    `yaml:"update_interval_hours"`
}

type NetworkConfig struct {
	Nameserver   string        `yaml:"nameserver"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	InsecureTLS  bool          `yaml:"insecure_tls"`
	DNSTimeout   time.Duration `yaml:"dns_timeout"`
	WhoisTimeout time.Duration `yaml:"whois_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type FeaturesConfig struct {
	Shorteners        []string `yaml:"shorteners"`
	SSLMode           string   `yaml:"ssl_mode"`
	SearchEndpoint    string   `yaml:"search_endpoint"`
	IndexOnFailure    int      `yaml:"index_on_failure"`
	PlaceholderRank   int      `yaml:"placeholder_rank"`
	TrafficThreshold  int      `yaml:"traffic_threshold"`
	PageRankHigh      int      `yaml:"page_rank_high"`
	BacklinkThreshold int      `yaml:"backlink_threshold"`
}

type BlockingConfig struct {
	Sources   []SourceConfig `yaml:"sources"`
	Blacklist []string       `yaml:"blacklist"`
	Whitelist []string       `yaml:"whitelist"`
}

// AIConfig describes the ONNX classifier. The model is optional; without it
// scans report features only.
type AIConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ModelDir          string  `yaml:"model_dir"`
	LibraryPath       string  `yaml:"onnx_library"`
	InputName         string  `yaml:"input_name"`
	LabelOutput       string  `yaml:"label_output"`
	ProbabilityOutput string  `yaml:"probability_output"`
	Threshold         float32 `yaml:"threshold"`
	// PersistDetections adds hosts the model flags to the local block-list.
	PersistDetections bool    `yaml:"persist_detections"`
}

type BatchConfig struct {
	Workers       int     `yaml:"workers"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type SourceConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Format       string `yaml:"format"`
	TargetColumn string `yaml:"target_column"`
}

// Default is the configuration used when no file is found. Loaded files are
// decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	opts := features.DefaultOptions()
	return &Config{
		App: AppConfig{
			DBPath:         DefaultDBPath,
			LogLevel:       "info",
			UpdateInterval: 24,
		},
		Network: NetworkConfig{
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) urlguard/1.0",
			MaxBodyBytes: 2 << 20,
			MaxRedirects: 10,
			DNSTimeout:   opts.DNSTimeout,
			WhoisTimeout: opts.WhoisTimeout,
			FetchTimeout: opts.FetchTimeout,
			ProbeTimeout: opts.ProbeTimeout,
		},
		Features: FeaturesConfig{
			Shorteners:        append([]string(nil), opts.Shorteners...),
			SSLMode:           string(opts.SSLMode),
			SearchEndpoint:    "https://html.duckduckgo.com/html/",
			IndexOnFailure:    int(*opts.IndexOnFailure),
			PlaceholderRank:   50000,
			TrafficThreshold:  opts.TrafficThreshold,
			PageRankHigh:      opts.PageRankHigh,
			BacklinkThreshold: opts.BacklinkThreshold,
		},
		Blocking: BlockingConfig{
			Sources: []SourceConfig{
				{Name: "openphish", URL: "https://openphish.com/feed.txt", Format: "text"},
			},
		},
		AI: AIConfig{
			ModelDir:          "data/models",
			InputName:         "float_input",
			LabelOutput:       "output_label",
			ProbabilityOutput: "output_probability",
			Threshold:         0.5,
		},
		Batch: BatchConfig{
			Workers:       8,
			RatePerSecond: 4,
			Burst:         4,
		},
	}
}

// Load reads the first config file found on the search path, or returns
// Default when there is none.
func Load() (*Config, error) {
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	log.Println("Config file not found, using built-in defaults.")
	return Default(), nil
}

// LoadFile reads an explicit config file.
func LoadFile(path string) (*Config, error) {
	log.Printf("Loading config from: %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch features.SSLMode(c.Features.SSLMode) {
	case features.SSLWhoisAge, features.SSLCertificate:
	default:
		return fmt.Errorf("features.ssl_mode must be %q or %q, got %q",
			features.SSLWhoisAge, features.SSLCertificate, c.Features.SSLMode)
	}
	if c.Features.IndexOnFailure < -1 || c.Features.IndexOnFailure > 1 {
		return fmt.Errorf("features.index_on_failure must be -1, 0 or 1, got %d", c.Features.IndexOnFailure)
	}
	if c.AI.Threshold <= 0 || c.AI.Threshold >= 1 {
		return fmt.Errorf("ai.threshold must be in (0,1), got %v", c.AI.Threshold)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers)
	}
	for _, s := range c.Blocking.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("blocking source needs a name and url: %+v", s)
		}
		if s.Format == "csv" && s.TargetColumn == "" {
			return fmt.Errorf("csv source %s needs target_column", s.Name)
		}
	}
	return nil
}

// Options translates the features section into extractor options.
func (c *Config) Options() features.Options {
	index := features.Value(c.Features.IndexOnFailure)
	return features.Options{
		Shorteners:        c.Features.Shorteners,
		SSLMode:           features.SSLMode(c.Features.SSLMode),
		IndexOnFailure:    &index,
		TrafficThreshold:  c.Features.TrafficThreshold,
		PageRankHigh:      c.Features.PageRankHigh,
		BacklinkThreshold: c.Features.BacklinkThreshold,
		DNSTimeout:        c.Network.DNSTimeout,
		WhoisTimeout:      c.Network.WhoisTimeout,
		FetchTimeout:      c.Network.FetchTimeout,
		ProbeTimeout:      c.Network.ProbeTimeout,
	}
}

// SetupLogging applies app.log_level to the standard logger.
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.App.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", c.App.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
