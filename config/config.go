package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	SectionPaths       []string
	DiscoveryWorkers   int
	Parallelism        int
	Delay              time.Duration
	Timeout            time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	LogFile            string
	UserAgent          string
	MetricsAddr        string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	Verbose            bool
}

// DefaultConfig returns conservative defaults for the directory target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://www.taan.org.np",
		SectionPaths: []string{
			"/members",
			"/associate-members",
			"/regional-members",
		},
		DiscoveryWorkers:   5,
		Parallelism:        10,
		Delay:              500 * time.Millisecond,
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       1 * time.Second,
		RetryBackoffMax:    8 * time.Second,
		OutputFile:         "output/members.csv",
		OutputFormat:       "csv",
		LogFile:            "scraper.log",
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		MetricsAddr:        "",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
		Verbose:            false,
	}
}

// AlphabetFilters returns the listing filter values: the empty string for
// the unfiltered trending view, then each starting letter.
func AlphabetFilters() []string {
	filters := make([]string, 0, 27)
	filters = append(filters, "")
	for c := 'a'; c <= 'z'; c++ {
		filters = append(filters, string(c))
	}
	return filters
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if len(c.SectionPaths) == 0 {
		return fmt.Errorf("at least one section path is required")
	}
	if c.DiscoveryWorkers <= 0 {
		return fmt.Errorf("discovery workers must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}
