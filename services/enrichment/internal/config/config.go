package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/romelikethecity/pecollective/common/database"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Environment string

	DataDir        string
	RawGlob        string
	VocabularyFile string

	StoreBackend string
	MasterFile   string
	TrendFile    string
	SQLitePath   string
	PostgresDSN  string

	ClickHouseDSN          string
	ClickHouseMaxOpenConns int
	ClickHouseMaxIdleConns int
	ClickHouseConnMaxLife  time.Duration
	ClickHouseUsername     string
	ClickHousePassword     string
	ClickHouseDatabase     string
	ClickHouseDialTimeout  time.Duration
	ClickHouseAsyncInsert  bool

	NATSURL            string
	NATSConnTimeout    time.Duration
	NATSTriggerSubject string
	NATSEventSubject   string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	S3Bucket       string
	S3Prefix       string
	AWSRegion      string
	AWSEndpoint    string
	AWSAccessKeyID string
	AWSSecretKey   string

	OTELCollectorURL string
	PushgatewayURL   string
	MetricsAddr      string

	SimilarLimit          int
	SkillsTop             int
	MetrosTop             int
	BenchmarkMinSamples   int
	BenchmarkTopCompanies int

	PollingInterval time.Duration
	RunTimeout      time.Duration
}

func LoadConfig() (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "data")

	config := &Config{
		Environment: getEnvString("ENVIRONMENT", "production"),

		DataDir:        dataDir,
		RawGlob:        getEnvString("RAW_GLOB", "raw_ai_jobs_*.csv"),
		VocabularyFile: getEnvString("VOCABULARY_FILE", ""),

		StoreBackend: strings.ToLower(getEnvString("STORE_BACKEND", StoreFile)),
		MasterFile:   getEnvString("MASTER_FILE", filepath.Join(dataDir, "ai_jobs_master.json")),
		TrendFile:    getEnvString("TREND_FILE", filepath.Join(dataDir, "job_count_history.csv")),
		SQLitePath:   getEnvString("SQLITE_PATH", filepath.Join(dataDir, "master.db")),
		PostgresDSN:  getEnvString("POSTGRES_DSN", ""),

		ClickHouseDSN:          getEnvString("CLICKHOUSE_DSN", ""),
		ClickHouseMaxOpenConns: getEnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 10),
		ClickHouseMaxIdleConns: getEnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5),
		ClickHouseConnMaxLife:  getEnvDuration("CLICKHOUSE_CONN_MAX_LIFE", time.Hour),
		ClickHouseUsername:     getEnvString("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword:     getEnvString("CLICKHOUSE_PASSWORD", ""),
		ClickHouseDatabase:     getEnvString("CLICKHOUSE_DATABASE", "pecollective"),
		ClickHouseDialTimeout:  getEnvDuration("CLICKHOUSE_DIAL_TIMEOUT", 10*time.Second),
		ClickHouseAsyncInsert:  getEnvBool("CLICKHOUSE_ASYNC_INSERT", true),

		NATSURL:            getEnvString("NATS_URL", ""),
		NATSConnTimeout:    getEnvDuration("NATS_CONN_TIMEOUT", 10*time.Second),
		NATSTriggerSubject: getEnvString("NATS_TRIGGER_SUBJECT", "jobs.enrich.trigger"),
		NATSEventSubject:   getEnvString("NATS_EVENT_SUBJECT", "jobs.enriched"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnvString("KAFKA_TOPIC", "jobs.enriched"),

		RedisAddr:     getEnvString("REDIS_ADDR", ""),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 24*time.Hour),

		S3Bucket:       getEnvString("S3_BUCKET", ""),
		S3Prefix:       getEnvString("S3_PREFIX", "enrichment"),
		AWSRegion:      getEnvString("AWS_REGION", "us-east-1"),
		AWSEndpoint:    getEnvString("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnvString("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnvString("AWS_SECRET_ACCESS_KEY", ""),

		OTELCollectorURL: getEnvString("OTEL_COLLECTOR_URL", ""),
		PushgatewayURL:   getEnvString("PUSHGATEWAY_URL", ""),
		MetricsAddr:      getEnvString("METRICS_ADDR", ":9102"),

		SimilarLimit:          getEnvInt("SIMILAR_LIMIT", 5),
		SkillsTop:             getEnvInt("SKILLS_TOP", 50),
		MetrosTop:             getEnvInt("METROS_TOP", 10),
		BenchmarkMinSamples:   getEnvInt("BENCHMARK_MIN_SAMPLES", 3),
		BenchmarkTopCompanies: getEnvInt("BENCHMARK_TOP_COMPANIES", 5),

		PollingInterval: getEnvDuration("POLLING_INTERVAL", 24*time.Hour),
		RunTimeout:      getEnvDuration("RUN_TIMEOUT", 10*time.Minute),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate reports configuration mistakes as invalid input, so the process
// exits with the usage code rather than a runtime failure.
func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreSQLite:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.InvalidInput(fmt.Sprintf("POSTGRES_DSN is required when STORE_BACKEND=%s", StorePostgres), nil)
		}
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown STORE_BACKEND %q (want %s, %s or %s)", c.StoreBackend, StoreFile, StoreSQLite, StorePostgres), nil)
	}
	if c.ClickHouseDSN != "" {
		if _, err := database.ParseAddrs(c.ClickHouseDSN); err != nil {
			return errors.InvalidInput("CLICKHOUSE_DSN has no hosts", err)
		}
	}
	if c.SimilarLimit <= 0 {
		return errors.InvalidInput(fmt.Sprintf("SIMILAR_LIMIT must be positive, got %d", c.SimilarLimit), nil)
	}
	if c.PollingInterval <= 0 {
		return errors.InvalidInput(fmt.Sprintf("POLLING_INTERVAL must be positive, got %s", c.PollingInterval), nil)
	}
	if c.RunTimeout < 0 {
		return errors.InvalidInput(fmt.Sprintf("RUN_TIMEOUT must not be negative, got %s", c.RunTimeout), nil)
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
