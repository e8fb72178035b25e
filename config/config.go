package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrConfiguration marks a missing or invalid setting. It is fatal for a run.
var ErrConfiguration = errors.New("configuration error")

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds every setting read from the environment.
type Config struct {
	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 */6 * * *"`

	StoreBackend       string `envconfig:"STORE_BACKEND" default:"supabase"`
	SupabaseURL        string `envconfig:"SUPABASE_URL"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_KEY"`
	SupabaseTable      string `envconfig:"SUPABASE_TABLE" default:"news_items"`

	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"require"`

	SourcesFile string `envconfig:"SOURCES_FILE"`

	GoogleCSEKey            string        `envconfig:"GOOGLE_CSE_KEY"`
	GoogleCSECX             string        `envconfig:"GOOGLE_CSE_CX"`
	GoogleCSEBaseURL        string        `envconfig:"GOOGLE_CSE_BASE_URL" default:"https://www.googleapis.com/customsearch/v1"`
	GoogleCSEPageDelay      time.Duration `envconfig:"GOOGLE_CSE_PAGE_DELAY" default:"300ms"`
	GoogleCSEAllowedDomains string        `envconfig:"GOOGLE_CSE_ALLOWED_DOMAINS"`

	PubMedBaseURL string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail   string `envconfig:"PUBMED_EMAIL"`
	PubMedTool    string `envconfig:"PUBMED_TOOL" default:"crc-news"`
	PubMedDays    int    `envconfig:"PUBMED_DAYS" default:"30"`

	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest/search"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	RunBudget        time.Duration `envconfig:"RUN_BUDGET" default:"50s"`
	SourceTimeout    time.Duration `envconfig:"SOURCE_TIMEOUT" default:"15s"`
	LLMTimeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"20s"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"3"`
	FeedMaxItems     int           `envconfig:"FEED_MAX_ITEMS" default:"20"`
	DefaultMonths    int           `envconfig:"DEFAULT_MONTHS" default:"6"`
	DefaultLimit     int           `envconfig:"DEFAULT_LIMIT" default:"100"`
	AutoApprove      bool          `envconfig:"AUTO_APPROVE" default:"true"`
	PersistRejected  bool          `envconfig:"PERSIST_REJECTED" default:"false"`
	UserAgent        string        `envconfig:"USER_AGENT" default:"crc-news/1.0 (+https://github.com/crc-news)"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
}

// DSN returns the PostgreSQL data source name.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// LLMEnabled reports whether scored relevance and generated excerpts are available.
func (c *Config) LLMEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// CSEEnabled reports whether keyword search credentials are present.
func (c *Config) CSEEnabled() bool {
	return c.GoogleCSEKey != "" && c.GoogleCSECX != ""
}

// S3Enabled reports whether run reports should be archived.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// CSEAllowedDomains splits GOOGLE_CSE_ALLOWED_DOMAINS into lower-cased roots.
func (c *Config) CSEAllowedDomains() []string {
	var out []string
	for _, d := range strings.Split(c.GoogleCSEAllowedDomains, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks that the chosen store backend has its credentials.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("%w: SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend", ErrConfiguration)
		}
	case BackendPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("%w: DB_HOST, DB_USER and DB_NAME are required for the postgres backend", ErrConfiguration)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrConfiguration, c.StoreBackend)
	}
	if c.RunBudget <= 0 {
		return fmt.Errorf("%w: RUN_BUDGET must be positive", ErrConfiguration)
	}
	if c.FetchConcurrency < 1 {
		c.FetchConcurrency = 1
	}
	return nil
}

// Load reads the configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
