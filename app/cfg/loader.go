package cfg

import (
	"cmp"
	"fmt"
	"regexp"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"storysift" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"storysift" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"storysift" description:"Database name"`

	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared near-duplicate index (in-memory index when unset)"`

	// Application configuration
	SourcesFile       string `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"Path to the source configuration file"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of ingest workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"15" description:"Scheduler tick interval in seconds"`
	ShutdownTimeout   int    `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"30" description:"Seconds to wait for in-flight jobs on shutdown"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetching
	FetchTimeout int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Default per-request fetch timeout in seconds"`
	MaxBodySize  int64  `long:"max-body-size" env:"MAX_BODY_SIZE" default:"10485760" description:"Maximum response body size in bytes"`
	UserAgent    string `long:"user-agent" env:"USER_AGENT" default:"storysift/1.0" description:"User agent string for HTTP requests"`

	// Scheduling health
	BackoffBase    int     `long:"backoff-base" env:"BACKOFF_BASE" default:"60" description:"Base failure backoff in seconds"`
	BackoffMax     int     `long:"backoff-max" env:"BACKOFF_MAX" default:"3600" description:"Maximum failure backoff in seconds"`
	ScheduleJitter float64 `long:"schedule-jitter" env:"SCHEDULE_JITTER" default:"0.1" description:"Jitter fraction applied to scheduling intervals (0 disables)"`

	// Deduplication
	ShingleSize    int     `long:"shingle-size" env:"SHINGLE_SIZE" default:"3" description:"Tokens per shingle"`
	HashCount      int     `long:"hash-count" env:"HASH_COUNT" default:"128" description:"Min-hash sketch size"`
	DedupBands     int     `long:"dedup-bands" env:"DEDUP_BANDS" default:"16" description:"Number of LSH bands"`
	DedupRows      int     `long:"dedup-rows" env:"DEDUP_ROWS" default:"8" description:"Rows per LSH band"`
	DedupThreshold float64 `long:"dedup-threshold" env:"DEDUP_THRESHOLD" default:"0.8" description:"Jaccard similarity threshold for duplicates"`
	DedupWindow    int     `long:"dedup-window" env:"DEDUP_WINDOW" default:"604800" description:"Recency window for duplicate matching in seconds"`
	BucketWidth    int     `long:"bucket-width" env:"BUCKET_WIDTH" default:"3600" description:"Time bucket width for fingerprints in seconds"`
	MinShingles    int     `long:"min-shingles" env:"MIN_SHINGLES" default:"8" description:"Minimum shingle count for dedup eligibility"`

	// Extraction
	MinBodyLength     int      `long:"min-body-length" env:"MIN_BODY_LENGTH" default:"100" description:"Minimum cleaned body length in characters"`
	LanguageThreshold float64  `long:"language-threshold" env:"LANGUAGE_THRESHOLD" default:"0.5" description:"Language detection confidence threshold"`
	AllowedLanguages  []string `long:"allowed-language" env:"ALLOWED_LANGUAGES" env-delim:"," description:"Accepted language codes (all languages when unset)"`
	ExtraBoilerplate  []string `long:"extra-boilerplate" env:"EXTRA_BOILERPLATE" env-delim:";" description:"Additional boilerplate line regex patterns (semicolon-separated)"`

	// Enrichment service
	EnrichmentURL     string `long:"enrichment-url" env:"ENRICHMENT_URL" description:"Enrichment service base URL (enrichment disabled when unset)"`
	EnrichmentKey     string `long:"enrichment-key" env:"ENRICHMENT_KEY" description:"Enrichment service API key"`
	EnrichmentTimeout int    `long:"enrichment-timeout" env:"ENRICHMENT_TIMEOUT" default:"15" description:"Enrichment request timeout in seconds"`

	// Search index
	SearchURL     string `long:"search-url" env:"SEARCH_URL" description:"Search index base URL (indexing disabled when unset)"`
	SearchIndex   string `long:"search-index" env:"SEARCH_INDEX" default:"articles" description:"Search index name"`
	SearchTimeout int    `long:"search-timeout" env:"SEARCH_TIMEOUT" default:"10" description:"Search index request timeout in seconds"`

	// Fingerprint retention
	RetentionSchedule string `long:"retention-schedule" env:"RETENTION_SCHEDULE" default:"0 3 * * *" description:"Cron schedule for the fingerprint retention sweep"`
	RetentionMaxAge   int    `long:"retention-max-age" env:"RETENTION_MAX_AGE" default:"1209600" description:"Maximum fingerprint age in seconds before the sweep removes it"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		RedisAddr:         raw.RedisAddr,
		SourcesFile:       raw.SourcesFile,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		ShutdownTimeout:   raw.ShutdownTimeout,
		APIAccessKey:      raw.APIAccessKey,
		FetchTimeout:      raw.FetchTimeout,
		MaxBodySize:       raw.MaxBodySize,
		UserAgent:         raw.UserAgent,
		BackoffBase:       raw.BackoffBase,
		BackoffMax:        raw.BackoffMax,
		ScheduleJitter:    raw.ScheduleJitter,
		ShingleSize:       raw.ShingleSize,
		HashCount:         raw.HashCount,
		DedupBands:        raw.DedupBands,
		DedupRows:         raw.DedupRows,
		DedupThreshold:    raw.DedupThreshold,
		DedupWindow:       raw.DedupWindow,
		BucketWidth:       raw.BucketWidth,
		MinShingles:       raw.MinShingles,
		MinBodyLength:     raw.MinBodyLength,
		LanguageThreshold: raw.LanguageThreshold,
		AllowedLanguages:  raw.AllowedLanguages,
		ExtraBoilerplate:  raw.ExtraBoilerplate,
		EnrichmentURL:     raw.EnrichmentURL,
		EnrichmentKey:     raw.EnrichmentKey,
		EnrichmentTimeout: raw.EnrichmentTimeout,
		SearchURL:         raw.SearchURL,
		SearchIndex:       raw.SearchIndex,
		SearchTimeout:     raw.SearchTimeout,
		RetentionSchedule: raw.RetentionSchedule,
		RetentionMaxAge:   raw.RetentionMaxAge,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.DedupBands*cfg.DedupRows != cfg.HashCount {
		return fmt.Errorf("bands (%d) times rows (%d) must equal hash count (%d)",
			cfg.DedupBands, cfg.DedupRows, cfg.HashCount)
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0, 1], got %g", cfg.DedupThreshold)
	}
	if cfg.ScheduleJitter < 0 || cfg.ScheduleJitter >= 1 {
		return fmt.Errorf("schedule jitter must be in [0, 1), got %g", cfg.ScheduleJitter)
	}
	if cfg.BackoffBase < 1 || cfg.BackoffMax < cfg.BackoffBase {
		return fmt.Errorf("backoff base (%d) must be positive and not exceed backoff max (%d)",
			cfg.BackoffBase, cfg.BackoffMax)
	}
	if cfg.LanguageThreshold < 0 || cfg.LanguageThreshold > 1 {
		return fmt.Errorf("language threshold must be in [0, 1], got %g", cfg.LanguageThreshold)
	}
	for _, pattern := range cfg.ExtraBoilerplate {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid boilerplate pattern %q: %v", pattern, err)
		}
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
