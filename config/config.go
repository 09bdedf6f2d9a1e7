package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig
	Scheduler SchedulerConfig
	Crawler   CrawlerConfig
	S3        S3Config
	Search    SearchConfig

	DBPath          string
	DatabaseURL     string // Postgres; SQLite is used when empty
	WatermarkPath   string
	SubscribersPath string
	LogLevel        string
}

type TelegramConfig struct {
	BotToken        string
	PropagateErrors bool // surface delivery errors after retries instead of dropping
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type CrawlerConfig struct {
	BaseURL          string
	PageWorkers      int
	ImageWorkers     int
	PageSize         int
	StrictExtraction bool // abort the cycle on a bad page instead of skipping it
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether the image archiver should run.
func (c *S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != ""
}

// SearchConfig is the fixed listing filter sent with every page request.
// Defaults target a single brand/model search sorted newest-first, which
// the pagination watermark logic depends on.
type SearchConfig struct {
	CategoryID    int    `yaml:"category_id"`
	BrandID       int    `yaml:"brand_id"`
	ModelID       int    `yaml:"model_id"`
	Currency      int    `yaml:"currency"`
	Sort          string `yaml:"sort"`
	ExcludeUSA    bool   `yaml:"exclude_usa_import"`
	ExcludeAbroad bool   `yaml:"exclude_abroad"`
	CustomsPaid   bool   `yaml:"customs_paid"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: TelegramConfig{
			BotToken:        os.Getenv("BOT_TOKEN"),
			PropagateErrors: os.Getenv("NOTIFY_PROPAGATE_ERRORS") == "true",
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvDuration("CRAWL_INTERVAL", 600*time.Second),
			Cron:     os.Getenv("CRAWL_CRON"),
		},
		Crawler: CrawlerConfig{
			BaseURL:          getEnv("BASE_URL", "https://auto.ria.com"),
			PageWorkers:      getEnvInt("PAGE_WORKERS", 10),
			ImageWorkers:     getEnvInt("IMAGE_WORKERS", 10),
			PageSize:         getEnvInt("PAGE_SIZE", 100),
			StrictExtraction: getEnv("STRICT_EXTRACTION", "true") == "true",
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:          getEnv("DB_PATH", "carwatch.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WatermarkPath:   getEnv("WATERMARK_PATH", "latest_run_time.txt"),
		SubscribersPath: getEnv("SUBSCRIBERS_PATH", "subscribers.txt"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Telegram.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	if err := cfg.loadSearchConfig(getEnv("SEARCH_CONFIG", "search.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSearchConfig(path string) error {
	c.Search = SearchConfig{
		CategoryID:    1,
		BrandID:       79,
		ModelID:       2104,
		Currency:      1,
		Sort:          "dates.created.desc",
		ExcludeUSA:    true,
		ExcludeAbroad: true,
		CustomsPaid:   true,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read search config: %w", err)
	}

	if err := yaml.Unmarshal(data, &c.Search); err != nil {
		return fmt.Errorf("parse search config: %w", err)
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
