package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrGoogleAPIKeyMissing is returned by RequireGoogleAPIKey when no key is configured.
var ErrGoogleAPIKeyMissing = errors.New("GOOGLE_API_KEY required (set env, .env or config/secrets.yaml google_api_key)")

// DefaultKeywords is the title prefilter applied before any generator call.
// A title matches when its lowercased form contains any keyword.
var DefaultKeywords = []string{
	"απεργία", "πορεία", "ποιότητα αέρα", "κακή ποιότητα", "πάτρα:", "πάτρα", "πάτρας",
	"25η μαρτίου", "25η μαρτίου:", "εκδήλωση", "εκδηλώσεις", "εκδηλώσεων", "παρέλαση",
	"παρελάσεις", "αγώνας", "αγώνες", "αγώνα", "προμηθέας", "ατμόσφαιρα", "ατμοσφαιρική",
	"ρύπανση", "καιρός", "κακοκαιρία", "καπνός", "καπνού", "πλήθος κόσμου", "βούλιαξε",
	"κατανυκτική", "γήπεδο", "γήπεδα", "έκαψαν", "πυρκαγιές", "φωτιά", "κυκλοφορία", "έρχεται",
	"σωματίδια", "κορωνοϊός", "κορωνοϊού", "εμπρησμός", "κυκλοφορίας", "ντέρμπι", "κάηκαν",
	"διοργάνωση", "τροχαίο", "συναυλία", "μπάσκετ", "ποδόσφαιρο", "εκλογές", "πυρκαγιά",
	"προμηθέα", "εορτή", "γιορτή", "πλήθος", "αιθαλομίχλη", "μάγεψε", "προσέλευση",
	"κόσμου", "γιορτινή", "τόφαλο", "τόφαλος", "πατρών", "περιβάλλον", "πυροσβέστες",
	"πυροσβεστών", "κίνηση", "εορταστικό", "ομιλία", "στους δρόμους", "συλλαλητήριο",
	"πυρκαγιάς", "πορείας", "τροχαίου", "ένταση", "κινητοποίηση", "καρναβάλι", "καρναβαλιού",
	`"πάτρα:`, `"πλήθος κόσμου`, "προμηθέας:", "ρύποι", "ρύπους", "γιορταστική", "εορταστική",
	"εορτασμός", "επίσκεψη", "επισκέψεις",
}

// Config holds configuration for the API server and the batch binaries,
// loaded from YAML, secrets, .env and environment.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	StoreBackend      string // "mongo" or "memory"
	MongoURI          string
	DatabaseName      string
	ArticleCollection string
	ReadingCollection string
	StoreTimeout      time.Duration

	RegistryPath  string
	ThresholdKm   float64
	MaxNameLength int

	RateLimitRPS   int
	RateLimitBurst int

	TrafficWindow    time.Duration
	DegradedErrorPct int
	DegradedMinTotal int

	GoogleAPIKey     string
	PlacesURL        string
	GeocodeURL       string
	ChatURL          string
	DescriptionModel string
	TagModel         string
	PromptsDir       string
	Keywords         []string
	ListingBaseURL   string
	ListingMaxPages  int
	HTTPTimeout      time.Duration
	LLMTimeout       time.Duration
	MaxRangeDays     int

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	StagingDir     string
	EnrichSchedule string
	IngestSchedule string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Store struct {
		Backend           string `yaml:"backend"`
		URI               string `yaml:"uri"`
		Database          string `yaml:"database"`
		ArticleCollection string `yaml:"article_collection"`
		ReadingCollection string `yaml:"reading_collection"`
		Timeout           string `yaml:"timeout"`
	} `yaml:"store"`

	Registry struct {
		Path          string  `yaml:"path"`
		ThresholdKm   float64 `yaml:"threshold_km"`
		MaxNameLength int     `yaml:"max_name_length"`
	} `yaml:"registry"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
		DegradedMinTotal int    `yaml:"degraded_min_total"`
	} `yaml:"health"`

	Enrich struct {
		PlacesURL        string   `yaml:"places_url"`
		GeocodeURL       string   `yaml:"geocode_url"`
		ChatURL          string   `yaml:"chat_url"`
		DescriptionModel string   `yaml:"description_model"`
		TagModel         string   `yaml:"tag_model"`
		PromptsDir       string   `yaml:"prompts_dir"`
		Keywords         []string `yaml:"keywords"`
		ListingBaseURL   string   `yaml:"listing_base_url"`
		ListingMaxPages  int      `yaml:"listing_max_pages"`
		HTTPTimeout      string   `yaml:"http_timeout"`
		LLMTimeout       string   `yaml:"llm_timeout"`
		MaxRangeDays     int      `yaml:"max_range_days"`
		Schedule         string   `yaml:"schedule"`
	} `yaml:"enrich"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Ingest struct {
		StagingDir string `yaml:"staging_dir"`
		Schedule   string `yaml:"schedule"`
	} `yaml:"ingest"`
}

type secretsFile struct {
	GoogleAPIKey string `yaml:"google_api_key"`
	MongoURI     string `yaml:"mongo_uri"`
}

// Load reads configuration for the API server. config/{ENV_NAME}.yaml
// (default dev) must exist. Call from project root.
func Load() (*Config, error) {
	return load(true)
}

// LoadBatch reads configuration for the enrich and ingest binaries. A missing
// config file is not an error; defaults and environment apply.
func LoadBatch() (*Config, error) {
	return load(false)
}

func load(requireFile bool) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		if requireFile {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "5050")
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.StoreBackend = strings.ToLower(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend, "mongo"))
	cfg.MongoURI = firstNonEmpty(os.Getenv("MONGO_URI"), sec.MongoURI, fc.Store.URI, "mongodb://localhost:27017")
	cfg.DatabaseName = firstNonEmpty(os.Getenv("DATABASE_NAME"), fc.Store.Database, "article_database")
	cfg.ArticleCollection = firstNonEmpty(os.Getenv("ARTICLE_COLLECTION"), fc.Store.ArticleCollection, "articles")
	cfg.ReadingCollection = firstNonEmpty(os.Getenv("SENSOR_DATA_COLLECTION"), fc.Store.ReadingCollection, "sensor_readings")
	cfg.StoreTimeout = parseDuration(fc.Store.Timeout, 5*time.Second)

	cfg.RegistryPath = firstNonEmpty(os.Getenv("REGISTRY_PATH"), fc.Registry.Path)
	cfg.ThresholdKm = fc.Registry.ThresholdKm
	if cfg.ThresholdKm <= 0 {
		cfg.ThresholdKm = 3
	}
	cfg.MaxNameLength = positiveOr(fc.Registry.MaxNameLength, 128)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cfg.TrafficWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 50)
	cfg.DegradedMinTotal = positiveOr(fc.Health.DegradedMinTotal, 10)

	cfg.GoogleAPIKey = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), sec.GoogleAPIKey)
	cfg.PlacesURL = firstNonEmpty(fc.Enrich.PlacesURL, "https://places.googleapis.com/v1/places:searchText")
	cfg.GeocodeURL = firstNonEmpty(fc.Enrich.GeocodeURL, "https://maps.googleapis.com/maps/api/geocode/json")
	cfg.ChatURL = firstNonEmpty(os.Getenv("CHAT_URL"), fc.Enrich.ChatURL, "http://localhost:1234/v1/chat/completions")
	cfg.DescriptionModel = firstNonEmpty(os.Getenv("DESCRIPTION_MODEL_ID"), fc.Enrich.DescriptionModel, "llama-krikri-8b-instruct")
	cfg.TagModel = firstNonEmpty(os.Getenv("TAG_MODEL_ID"), fc.Enrich.TagModel, "qwen2.5-14b-instruct")
	cfg.PromptsDir = firstNonEmpty(os.Getenv("PROMPTS_DIR"), fc.Enrich.PromptsDir)
	cfg.Keywords = fc.Enrich.Keywords
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), DefaultKeywords...)
	}
	cfg.ListingBaseURL = firstNonEmpty(fc.Enrich.ListingBaseURL, "https://www.thebest.gr/patra-dytiki-ellada")
	cfg.ListingMaxPages = positiveOr(fc.Enrich.ListingMaxPages, 200)
	cfg.HTTPTimeout = parseDurationOrZero(fc.Enrich.HTTPTimeout, 10*time.Second)
	cfg.LLMTimeout = parseDurationOrZero(fc.Enrich.LLMTimeout, 300*time.Second)
	cfg.MaxRangeDays = positiveOr(fc.Enrich.MaxRangeDays, 90)
	cfg.EnrichSchedule = strings.TrimSpace(fc.Enrich.Schedule)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory"))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 24*time.Hour)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = positiveOr(fc.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(fc.CircuitBreaker.SuccessThreshold, 1)
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.StagingDir = firstNonEmpty(os.Getenv("STAGING_DIR"), fc.Ingest.StagingDir, "csv_readings")
	cfg.IngestSchedule = strings.TrimSpace(fc.Ingest.Schedule)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireGoogleAPIKey reports ErrGoogleAPIKeyMissing when enrichment cannot
// call the place and geocode services.
func (c *Config) RequireGoogleAPIKey() error {
	if strings.TrimSpace(c.GoogleAPIKey) == "" {
		return ErrGoogleAPIKeyMissing
	}
	return nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (validate rejects them where they matter).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// validate performs post-load validation of configuration values.
// Collaborator timeouts must be positive and the request timeout must leave
// room for one store round trip; it is raised when it does not.
func validate(cfg *Config) error {
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", cfg.ServerPort)
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("enrich.http_timeout must be positive")
	}
	if cfg.LLMTimeout <= 0 {
		return fmt.Errorf("enrich.llm_timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.StoreTimeout {
		cfg.RequestTimeout = cfg.StoreTimeout + time.Second
	}
	switch cfg.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("store.backend must be mongo or memory, got %q", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
