package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Near-duplicate index backend (in-memory when empty)
	RedisAddr string

	// Application configuration
	SourcesFile       string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	ShutdownTimeout   int
	APIAccessKey      string

	// Fetching
	FetchTimeout int
	MaxBodySize  int64
	UserAgent    string

	// Scheduling health
	BackoffBase    int
	BackoffMax     int
	ScheduleJitter float64

	// Deduplication
	ShingleSize    int
	HashCount      int
	DedupBands     int
	DedupRows      int
	DedupThreshold float64
	DedupWindow    int
	BucketWidth    int
	MinShingles    int

	// Extraction
	MinBodyLength     int
	LanguageThreshold float64
	AllowedLanguages  []string
	ExtraBoilerplate  []string

	// Enrichment service (disabled when URL is empty)
	EnrichmentURL     string
	EnrichmentKey     string
	EnrichmentTimeout int

	// Search index (disabled when URL is empty)
	SearchURL     string
	SearchIndex   string
	SearchTimeout int

	// Fingerprint retention
	RetentionSchedule string
	RetentionMaxAge   int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
