package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Crawl     CrawlConfig
	Validator ValidatorConfig
	Retention RetentionConfig
	Backfill  BackfillConfig
	Schedule  ScheduleConfig
}

type AppConfig struct {
	AppName       string
	Environment   string
	HTTPPort      string
	WSPort        string
	InternalToken string
	LogLevel      string
}

type DatabaseConfig struct {
	Driver string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	SQLitePath string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration

	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// CrawlConfig drives the listing walk. StartURL must live under ListingPathPrefix.
type CrawlConfig struct {
	StartURL          string
	ListingPathPrefix string
	PageParam         string
	DetailURLTemplate string

	MaxPages          int
	EmptyStreak       int
	IdleStreak        int
	LowYieldThreshold int

	FetchAttempts  int
	FetchBaseDelay time.Duration
	FetchMaxDelay  time.Duration
	FetchTimeout   time.Duration
	PageDelay      time.Duration

	UpsertInFlight int
	UseBrowser     bool
	LockTTL        time.Duration
}

type ValidatorConfig struct {
	ExpiredMarker string
	BatchSize     int
	Concurrency   int
	BatchPause    time.Duration
	RecheckAfter  time.Duration
	Limit         int
	// Rate caps detail page probes per second. 0 means no cap.
	Rate float64
}

type RetentionConfig struct {
	StaleAfter      time.Duration
	SweepAfterCrawl bool
}

type BackfillConfig struct {
	BatchSize   int
	Concurrency int
	Limit       int
}

// ScheduleConfig holds cron specs. An empty spec disables the job.
type ScheduleConfig struct {
	Crawl      string
	Validate   string
	Sweep      string
	Reactivate string
	Backfill   string
	RunOnStart bool
}

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidEnv         = errors.New("invalid environment variables")
)

func Load() (Config, error) {
	cfg := Config{}

	var missing []string
	var invalid []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string, def string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		return v
	}
	optInt := func(key string, def int) int {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optDuration := func(key string, def time.Duration) time.Duration {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v < 0 {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optFloat := func(key string, def float64) float64 {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optBool := func(key string, def bool) bool {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return v
	}

	cfg.App = AppConfig{
		AppName:       req("APP_NAME"),
		Environment:   req("APP_ENV"),
		HTTPPort:      opt("HTTP_PORT", "8080"),
		WSPort:        opt("WS_PORT", ""),
		InternalToken: opt("INTERNAL_TOKEN", ""),
		LogLevel:      opt("LOG_LEVEL", "info"),
	}

	cfg.Database = DatabaseConfig{
		Driver:                strings.ToLower(opt("DB_DRIVER", "postgres")),
		DBHost:                opt("DB_HOST", ""),
		DBPort:                opt("DB_PORT", "5432"),
		DBName:                opt("DB_NAME", ""),
		DBUser:                opt("DB_USER", ""),
		DBPassword:            opt("DB_PASSWORD", ""),
		DBSSLMode:             opt("DB_SSL_MODE", "disable"),
		SQLitePath:            opt("SQLITE_PATH", "jobpulse.db"),
		ConnectTimeout:        optDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolMaxConns:          int32(optInt("DB_POOL_MAX_CONNS", 0)),
		PoolMinConns:          int32(optInt("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   optDuration("DB_POOL_MAX_CONN_LIFETIME", 0),
		PoolMaxConnIdleTime:   optDuration("DB_POOL_MAX_CONN_IDLE_TIME", 0),
		PoolHealthCheckPeriod: optDuration("DB_POOL_HEALTH_CHECK_PERIOD", 0),
		MigrationsDir:         opt("MIGRATIONS_DIR", ""),
	}
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.DBHost == "" {
			missing = append(missing, "DB_HOST")
		}
		if cfg.Database.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
	case "sqlite":
	default:
		invalid = append(invalid, "DB_DRIVER")
	}

	cfg.Redis = RedisConfig{
		Host:     opt("REDIS_HOST", "localhost"),
		Port:     opt("REDIS_PORT", "6379"),
		Password: opt("REDIS_PASSWORD", ""),
		DB:       optInt("REDIS_DB", 0),
	}

	cfg.Crawl = CrawlConfig{
		StartURL:          opt("CRAWL_START_URL", "https://www.jobindex.dk/jobsoegning/kontor"),
		ListingPathPrefix: opt("CRAWL_LISTING_PATH_PREFIX", "/jobsoegning/"),
		PageParam:         opt("CRAWL_PAGE_PARAM", "page"),
		DetailURLTemplate: opt("DETAIL_URL_TEMPLATE", "https://www.jobindex.dk/vis-job/%s"),
		MaxPages:          optInt("CRAWL_MAX_PAGES", 1000),
		EmptyStreak:       optInt("CRAWL_EMPTY_STREAK", 2),
		IdleStreak:        optInt("CRAWL_IDLE_STREAK", 8),
		LowYieldThreshold: optInt("CRAWL_LOW_YIELD_THRESHOLD", 3),
		FetchAttempts:     optInt("CRAWL_FETCH_ATTEMPTS", 3),
		FetchBaseDelay:    optDuration("CRAWL_FETCH_BASE_DELAY", 500*time.Millisecond),
		FetchMaxDelay:     optDuration("CRAWL_FETCH_MAX_DELAY", 8*time.Second),
		FetchTimeout:      optDuration("CRAWL_FETCH_TIMEOUT", 30*time.Second),
		PageDelay:         optDuration("CRAWL_PAGE_DELAY", time.Second),
		UpsertInFlight:    optInt("CRAWL_UPSERT_INFLIGHT", 2),
		UseBrowser:        optBool("CRAWL_USE_BROWSER", false),
		LockTTL:           optDuration("CRAWL_LOCK_TTL", 2*time.Hour),
	}
	if !strings.Contains(cfg.Crawl.DetailURLTemplate, "%s") {
		invalid = append(invalid, "DETAIL_URL_TEMPLATE")
	}

	cfg.Validator = ValidatorConfig{
		ExpiredMarker: opt("VALIDATOR_EXPIRED_MARKER", "Annoncen er udløbet!"),
		BatchSize:     optInt("VALIDATOR_BATCH_SIZE", 3),
		Concurrency:   optInt("VALIDATOR_CONCURRENCY", 3),
		BatchPause:    optDuration("VALIDATOR_BATCH_PAUSE", 2*time.Second),
		RecheckAfter:  optDuration("VALIDATOR_RECHECK_AFTER", 0),
		Limit:         optInt("VALIDATOR_LIMIT", 0),
		Rate:          optFloat("VALIDATOR_RATE", 0),
	}

	cfg.Retention = RetentionConfig{
		StaleAfter:      optDuration("RETENTION_STALE_AFTER", 48*time.Hour),
		SweepAfterCrawl: optBool("RETENTION_SWEEP_AFTER_CRAWL", true),
	}

	cfg.Backfill = BackfillConfig{
		BatchSize:   optInt("BACKFILL_BATCH_SIZE", 200),
		Concurrency: optInt("BACKFILL_CONCURRENCY", 4),
		Limit:       optInt("BACKFILL_LIMIT", 0),
	}

	cfg.Schedule = ScheduleConfig{
		Crawl:      opt("SCHEDULE_CRAWL", "@every 6h"),
		Validate:   opt("SCHEDULE_VALIDATE", "@every 12h"),
		Sweep:      opt("SCHEDULE_SWEEP", ""),
		Reactivate: opt("SCHEDULE_REACTIVATE", "@daily"),
		Backfill:   opt("SCHEDULE_BACKFILL", ""),
		RunOnStart: optBool("SCHEDULE_RUN_ON_START", false),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errInvalidEnv, strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func (c DatabaseConfig) IsSQLite() bool {
	return c.Driver == "sqlite"
}
