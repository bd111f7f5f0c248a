package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config holds all runtime settings
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Extraction   ExtractionConfig   `yaml:"extraction" mapstructure:"extraction"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	RateLimiting RateLimitConfig    `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Scoring      ScoringConfig      `yaml:"scoring" mapstructure:"scoring"`
	Complexity   ComplexityConfig   `yaml:"complexity" mapstructure:"complexity"`
	Progress     ProgressConfig     `yaml:"progress" mapstructure:"progress"`
	Sampling     SamplingConfig     `yaml:"sampling" mapstructure:"sampling"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects and configures the external extractor
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini
	Model          string  `yaml:"model" mapstructure:"model"`
	APIKey         string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	VerifyFidelity bool    `yaml:"verify_fidelity" mapstructure:"verify_fidelity"` // Reject names with letters absent from the input
}

// ExtractionConfig controls batching and concurrency of extractor calls
type ExtractionConfig struct {
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`   // Records queued before a flush
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"` // In-flight calls
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// RetryConfig is the per-record retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter" mapstructure:"max_jitter"`
}

// RateLimitConfig bounds request rate per provider
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig controls memoization of extraction results
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// HTTPConfig applies to outbound HTTP clients
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// Weights combine the four sub-scores; they must sum to 1
type Weights struct {
	Identification float64 `yaml:"author_identification" mapstructure:"author_identification"`
	Separation     float64 `yaml:"author_separation" mapstructure:"author_separation"`
	Classification float64 `yaml:"name_affiliation_classification" mapstructure:"name_affiliation_classification"`
	Formatting     float64 `yaml:"name_formatting" mapstructure:"name_formatting"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Identification + w.Separation + w.Classification + w.Formatting
}

// ScoringConfig holds aggregation weights and status thresholds
type ScoringConfig struct {
	Weights          Weights `yaml:"weights" mapstructure:"weights"`
	CorrectThreshold float64 `yaml:"correct_threshold" mapstructure:"correct_threshold"`
	PartialThreshold float64 `yaml:"partial_threshold" mapstructure:"partial_threshold"`
}

// SimpleCriteria defines the simple reporting bucket
type SimpleCriteria struct {
	MaxLength       int  `yaml:"max_length" mapstructure:"max_length"`
	MaxAuthors      int  `yaml:"max_authors" mapstructure:"max_authors"`
	HasAffiliations bool `yaml:"has_affiliations" mapstructure:"has_affiliations"`
}

// MediumCriteria defines the medium reporting bucket
type MediumCriteria struct {
	MaxLength  int `yaml:"max_length" mapstructure:"max_length"`
	MaxAuthors int `yaml:"max_authors" mapstructure:"max_authors"`
}

// ComplexityConfig holds the reporting stratification thresholds
type ComplexityConfig struct {
	Simple SimpleCriteria `yaml:"simple" mapstructure:"simple"`
	Medium MediumCriteria `yaml:"medium" mapstructure:"medium"`
}

// ProgressConfig locates the review progress file
type ProgressConfig struct {
	Path               string        `yaml:"path" mapstructure:"path"`
	MaxBackups         int           `yaml:"max_backups" mapstructure:"max_backups"`
	AutoBackupInterval time.Duration `yaml:"auto_backup_interval" mapstructure:"auto_backup_interval"`
}

// SamplingConfig sets stratified sample sizes
type SamplingConfig struct {
	SimpleSize  int   `yaml:"simple_sample_size" mapstructure:"simple_sample_size"`
	MediumSize  int   `yaml:"medium_sample_size" mapstructure:"medium_sample_size"`
	ComplexSize int   `yaml:"complex_sample_size" mapstructure:"complex_sample_size"`
	Seed        int64 `yaml:"seed" mapstructure:"seed"` // 0 means time-seeded
}

// SourceConfig enables one external lookup service
type SourceConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	APIURL  string `yaml:"api_url" mapstructure:"api_url"`
}

// VerificationConfig controls external verification lookups
type VerificationConfig struct {
	CrossRef SourceConfig `yaml:"crossref" mapstructure:"crossref"`
	ORCID    SourceConfig `yaml:"orcid" mapstructure:"orcid"`
	Workers  int          `yaml:"workers" mapstructure:"workers"`
	Retries  int          `yaml:"retries" mapstructure:"retries"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0,
			MaxTokens:   1000,
		},
		Extraction: ExtractionConfig{
			BatchSize:   20,
			Concurrency: 8,
			CallTimeout: 60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 6,
			BaseDelay:   time.Second,
			MaxDelay:    20 * time.Second,
			MaxJitter:   time.Second,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         8,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".creatorcheck/cache",
			TTL:     7 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "creatorcheck/0.3 (+https://github.com/ppiankov/creatorcheck)",
		},
		Scoring: ScoringConfig{
			Weights: Weights{
				Identification: 0.35,
				Separation:     0.30,
				Classification: 0.20,
				Formatting:     0.15,
			},
			CorrectThreshold: 4.5,
			PartialThreshold: 3.5,
		},
		Complexity: ComplexityConfig{
			Simple: SimpleCriteria{MaxLength: 50, MaxAuthors: 1, HasAffiliations: false},
			Medium: MediumCriteria{MaxLength: 150, MaxAuthors: 3},
		},
		Progress: ProgressConfig{
			Path:               "data/validation/validation_progress.json",
			MaxBackups:         10,
			AutoBackupInterval: 5 * time.Minute,
		},
		Sampling: SamplingConfig{
			SimpleSize:  50,
			MediumSize:  30,
			ComplexSize: 20,
		},
		Verification: VerificationConfig{
			CrossRef: SourceConfig{Enabled: true, APIURL: "https://api.crossref.org/works"},
			ORCID:    SourceConfig{Enabled: true, APIURL: "https://pub.orcid.org/v3.0/search/"},
			Workers:  2,
			Retries:  3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks settings that would make a run meaningless
func (c *Config) Validate() error {
	var errs []error

	if sum := c.Scoring.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("scoring weights must sum to 1, got %.4f", sum))
	}
	if c.Scoring.PartialThreshold > c.Scoring.CorrectThreshold {
		errs = append(errs, fmt.Errorf("partial threshold %.2f exceeds correct threshold %.2f",
			c.Scoring.PartialThreshold, c.Scoring.CorrectThreshold))
	}
	if c.Extraction.BatchSize <= 0 {
		errs = append(errs, errors.New("extraction batch_size must be positive"))
	}
	if c.Extraction.Concurrency <= 0 {
		errs = append(errs, errors.New("extraction concurrency must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max_attempts must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry max_delay %s is below base_delay %s", c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Progress.MaxBackups <= 0 {
		errs = append(errs, errors.New("progress max_backups must be positive"))
	}
	if c.Complexity.Medium.MaxLength < c.Complexity.Simple.MaxLength {
		errs = append(errs, errors.New("complexity medium.max_length must be at least simple.max_length"))
	}

	return errors.Join(errs...)
}
