package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Rate-limit store configuration
	Store StoreConfig

	// Database configuration (postgres store)
	Database DatabaseConfig

	// Version-control hosting configuration
	GitHub GitHubConfig

	// Catalog content layout
	Content ContentConfig

	// Submission rules
	Submission SubmissionConfig

	// Rate limiter settings
	RateLimit RateLimitConfig

	// Metadata resolver settings
	Resolver ResolverConfig

	// Admin console settings
	Admin AdminConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SubmitTimeout   time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For/X-Real-IP headers are believed
	TrustedProxies []string
	// TrustedPlatform names a header set by the edge ("cloudflare" or a header name)
	TrustedPlatform string
}

// StoreConfig selects the durable key-value store backing the rate limiter
type StoreConfig struct {
	Driver         string // "postgres" or "sqlite"
	SQLitePath     string
	MigrationsPath string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// GitHubConfig identifies the upstream repository and credentials
type GitHubConfig struct {
	Token      string
	Owner      string
	Repo       string
	BaseBranch string
	APIURL     string // empty for github.com
	WebURL     string
}

// ContentConfig describes where catalog records live in the repository
type ContentConfig struct {
	Strategy       string // "files" or "array"
	Dir            string
	FilePrefix     string
	IDWidth        int
	CatalogFile    string
	CatalogMarker  string
	CategoriesFile string
}

// SubmissionConfig holds submission rules
type SubmissionConfig struct {
	MaxBatchSize    int
	KnownPlatforms  []string
	KnownCategories []string
}

// RateLimitConfig holds the submitter throttle settings
type RateLimitConfig struct {
	Window          time.Duration
	RejectAnonymous bool
}

// ResolverConfig holds metadata resolver settings
type ResolverConfig struct {
	FirecrawlAPIKey string
	FirecrawlURL    string
	PrintablesURL   string
	PrintablesMedia string
	StageTimeout    time.Duration
	Proxies         []string
	UserAgent       string
}

// AdminConfig holds admin console settings
type AdminConfig struct {
	Password string
	Header   string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

const (
	StrategyFiles = "files"
	StrategyArray = "array"

	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// DefaultPlatforms is the recognized platform vocabulary
var DefaultPlatforms = []string{
	"MBoards", "Meepo", "Radium Performance", "Bioboards", "Hoyt St", "Lacroix", "Trampa",
	"Evolve", "Backfire", "Exway", "Onsra", "Wowgo", "Tynee", "Other", "Miscellaneous Items",
}

// DefaultCategories is the recognized typeOfPart vocabulary used until the repository provides one
var DefaultCategories = []string{
	"Deck", "Truck", "Motor", "Enclosure", "Adapter",
	"Battery Box", "Mount", "Hardware", "Remote", "BMS",
	"ESC", "Drivetrain", "Wheel", "Pulley", "Bearing",
	"Gasket", "Bracket", "Headlight", "Gland", "Miscellaneous", "OEM",
}

// DefaultProxies are public CORS relays tried in order when a direct fetch is blocked.
// %s is replaced with the query-escaped target URL.
var DefaultProxies = []string{
	"https://api.allorigins.win/raw?url=%s",
	"https://corsproxy.io/?url=%s",
	"https://api.codetabs.com/v1/proxy?quest=%s",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			SubmitTimeout:   getDurationEnv("SUBMIT_TIMEOUT", 60*time.Second),
			TrustedProxies:  getListEnv("TRUSTED_PROXIES", nil),
			TrustedPlatform: getEnv("TRUSTED_PLATFORM", ""),
		},
		Store: StoreConfig{
			Driver:         getEnv("RATE_LIMIT_STORE", StoreDriverPostgres),
			SQLitePath:     getEnv("SQLITE_PATH", "./data/ratelimit.sqlite"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "parts_submissions"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		GitHub: GitHubConfig{
			Token:      getEnv("GITHUB_TOKEN", ""),
			Owner:      getEnv("GITHUB_OWNER", "Focerqc"),
			Repo:       getEnv("GITHUB_REPO", "CLONEpubparts.xyz"),
			BaseBranch: getEnv("GITHUB_BASE_BRANCH", "master"),
			APIURL:     getEnv("GITHUB_API_URL", ""),
			WebURL:     getEnv("GITHUB_WEB_URL", "https://github.com"),
		},
		Content: ContentConfig{
			Strategy:       getEnv("CONTENT_STRATEGY", StrategyFiles),
			Dir:            getEnv("CONTENT_DIR", "src/data/parts"),
			FilePrefix:     getEnv("CONTENT_FILE_PREFIX", "part-"),
			IDWidth:        getIntEnv("CONTENT_ID_WIDTH", 4),
			CatalogFile:    getEnv("CATALOG_FILE", "src/data/parts.json"),
			CatalogMarker:  getEnv("CATALOG_MARKER", `\]\s*$`),
			CategoriesFile: getEnv("CATEGORIES_FILE", "src/data/categories.json"),
		},
		Submission: SubmissionConfig{
			MaxBatchSize:    getIntEnv("MAX_BATCH_SIZE", 10),
			KnownPlatforms:  getListEnv("KNOWN_PLATFORMS", DefaultPlatforms),
			KnownCategories: getListEnv("KNOWN_CATEGORIES", DefaultCategories),
		},
		RateLimit: RateLimitConfig{
			Window:          getDurationEnv("RATE_LIMIT_WINDOW", 60*time.Second),
			RejectAnonymous: getBoolEnv("RATE_LIMIT_REJECT_ANONYMOUS", false),
		},
		Resolver: ResolverConfig{
			FirecrawlAPIKey: getEnv("FIRECRAWL_API_KEY", ""),
			FirecrawlURL:    getEnv("FIRECRAWL_URL", "https://api.firecrawl.dev/v1/scrape"),
			PrintablesURL:   getEnv("PRINTABLES_GRAPHQL_URL", "https://api.printables.com/graphql/"),
			PrintablesMedia: getEnv("PRINTABLES_MEDIA_URL", "https://media.printables.com/"),
			StageTimeout:    getDurationEnv("RESOLVER_STAGE_TIMEOUT", 10*time.Second),
			Proxies:         getListEnv("RESOLVER_PROXIES", DefaultProxies),
			UserAgent: getEnv("RESOLVER_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
		},
		Admin: AdminConfig{
			Password: getEnv("ADMIN_PASSWORD", ""),
			Header:   getEnv("ADMIN_HEADER", "x-admin-password"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("GITHUB_OWNER and GITHUB_REPO are required")
	}
	if c.GitHub.BaseBranch == "" {
		return fmt.Errorf("GITHUB_BASE_BRANCH is required")
	}
	switch c.Content.Strategy {
	case StrategyFiles, StrategyArray:
	default:
		return fmt.Errorf("CONTENT_STRATEGY must be %q or %q", StrategyFiles, StrategyArray)
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres store")
		}
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be %q or %q", StoreDriverPostgres, StoreDriverSQLite)
	}
	if c.Content.IDWidth < 1 {
		return fmt.Errorf("CONTENT_ID_WIDTH must be positive")
	}
	if c.Submission.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
			}
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getListEnv parses a comma-separated list, dropping blank items
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
