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

// maxEnvAccounts bounds the IGLEADS_ACCOUNT_<n>_* scan
const maxEnvAccounts = 20

// Config holds all configuration options for the lead engine
type Config struct {
	// Account pool, one entry per credential set
	Accounts []AccountConfig `yaml:"accounts" json:"accounts"`

	// Optional proxy pool, consumed at browser launch
	Proxies []ProxyConfig `yaml:"proxies" json:"proxies"`

	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Pacing     PacingConfig     `yaml:"pacing" json:"pacing"`
	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`
	Discovery  DiscoveryConfig  `yaml:"discovery" json:"discovery"`
	Traversal  TraversalConfig  `yaml:"traversal" json:"traversal"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Resilience ResilienceConfig `yaml:"resilience" json:"resilience"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// AccountConfig holds one credential set
type AccountConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	// Handle is the display name the account is known by on the network.
	// The logged-in identity is resolved from it, never from the page.
	Handle string `yaml:"handle" json:"handle"`
	// UserID is matched against the ds_user_id cookie to detect drift
	UserID     string `yaml:"user_id" json:"user_id"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
}

// ProxyConfig holds a single upstream proxy
type ProxyConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Protocol string `yaml:"protocol" json:"protocol"`
}

// Address returns the proxy in scheme://host:port form
func (p ProxyConfig) Address() string {
	protocol := p.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, p.Host, p.Port)
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless     bool          `yaml:"headless" json:"headless"`
	ExecPath     string        `yaml:"exec_path" json:"exec_path"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth  int           `yaml:"window_width" json:"window_width"`
	WindowHeight int           `yaml:"window_height" json:"window_height"`
	UserDataDir  string        `yaml:"user_data_dir" json:"user_data_dir"`
	Locale       string        `yaml:"locale" json:"locale"`
	CloseTimeout time.Duration `yaml:"close_timeout" json:"close_timeout"`
	// ManualLoginWindow is how long to wait for a human to finish a
	// login in a visible browser. Zero disables the fallback.
	ManualLoginWindow time.Duration `yaml:"manual_login_window" json:"manual_login_window"`
}

// DelayWindow is a jittered pause range
type DelayWindow struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// PacingConfig holds the human-like delay windows
type PacingConfig struct {
	Action          DelayWindow `yaml:"action" json:"action"`
	Navigation      DelayWindow `yaml:"navigation" json:"navigation"`
	Typing          DelayWindow `yaml:"typing" json:"typing"`
	Scroll          DelayWindow `yaml:"scroll" json:"scroll"`
	BetweenProfiles DelayWindow `yaml:"between_profiles" json:"between_profiles"`
	BetweenHashtags DelayWindow `yaml:"between_hashtags" json:"between_hashtags"`
}

// NavigationConfig holds NavigationGuard settings
type NavigationConfig struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxPerMinute        int           `yaml:"max_per_minute" json:"max_per_minute"`
	RateLimitSignatures []string      `yaml:"rate_limit_signatures" json:"rate_limit_signatures"`
}

// DiscoveryConfig holds hashtag expansion settings
type DiscoveryConfig struct {
	Enabled          bool    `yaml:"enabled" json:"enabled"`
	MinPriorityScore float64 `yaml:"min_priority_score" json:"min_priority_score"`
	MinPostCount     int     `yaml:"min_post_count" json:"min_post_count"`
	MaxVariations    int     `yaml:"max_variations" json:"max_variations"`
}

// TraversalConfig holds the per-hashtag budgets
type TraversalConfig struct {
	MaxClicks                int     `yaml:"max_clicks" json:"max_clicks"`
	MaxConsecutiveDuplicates int     `yaml:"max_consecutive_duplicates" json:"max_consecutive_duplicates"`
	MaxLanguageRejections    int     `yaml:"max_language_rejections" json:"max_language_rejections"`
	MaxNoNewPostPasses       int     `yaml:"max_no_new_post_passes" json:"max_no_new_post_passes"`
	ScrollDuplicateThreshold int     `yaml:"scroll_duplicate_threshold" json:"scroll_duplicate_threshold"`
	ScrollClickThreshold     int     `yaml:"scroll_click_threshold" json:"scroll_click_threshold"`
	EvictionTolerance        float64 `yaml:"eviction_tolerance" json:"eviction_tolerance"`
	ScrollDistance           float64 `yaml:"scroll_distance" json:"scroll_distance"`
}

// ValidationConfig holds the quality gate parameters. The activity numbers
// are tuned empirically and are not load-bearing beyond the gate existing.
type ValidationConfig struct {
	TargetLanguage       string  `yaml:"target_language" json:"target_language"`
	AutoApproveBioLength int     `yaml:"auto_approve_bio_length" json:"auto_approve_bio_length"`
	ActivityThreshold    float64 `yaml:"activity_threshold" json:"activity_threshold"`
	RecencyWeight        float64 `yaml:"recency_weight" json:"recency_weight"`
	FrequencyWeight      float64 `yaml:"frequency_weight" json:"frequency_weight"`
	FrequencyWindowDays  int     `yaml:"frequency_window_days" json:"frequency_window_days"`
	DefaultCountryCode   string  `yaml:"default_country_code" json:"default_country_code"`
}

// ResilienceConfig holds the ceilings and cooldowns
type ResilienceConfig struct {
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
	MaxSessionInvalid    int           `yaml:"max_session_invalid" json:"max_session_invalid"`
	MaxAccountFailures   int           `yaml:"max_account_failures" json:"max_account_failures"`
	AccountCooldown      time.Duration `yaml:"account_cooldown" json:"account_cooldown"`
	IPCooldown           time.Duration `yaml:"ip_cooldown" json:"ip_cooldown"`
	DelayMultiplierStep  float64       `yaml:"delay_multiplier_step" json:"delay_multiplier_step"`
	MaxDelayMultiplier   float64       `yaml:"max_delay_multiplier" json:"max_delay_multiplier"`
}

// StoreConfig holds the lead store connection
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"-"`
	DryRun bool   `yaml:"dry_run" json:"dry_run"`
}

// StorageConfig holds local file locations
type StorageConfig struct {
	CookieDir string `yaml:"cookie_dir" json:"cookie_dir"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			WindowWidth:       1366,
			WindowHeight:      900,
			Locale:            "pt-BR",
			CloseTimeout:      10 * time.Second,
			ManualLoginWindow: 0,
		},
		Pacing: PacingConfig{
			Action:          DelayWindow{Min: 800 * time.Millisecond, Max: 2500 * time.Millisecond},
			Navigation:      DelayWindow{Min: 2 * time.Second, Max: 5 * time.Second},
			Typing:          DelayWindow{Min: 60 * time.Millisecond, Max: 220 * time.Millisecond},
			Scroll:          DelayWindow{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond},
			BetweenProfiles: DelayWindow{Min: 4 * time.Second, Max: 9 * time.Second},
			BetweenHashtags: DelayWindow{Min: 20 * time.Second, Max: 45 * time.Second},
		},
		Navigation: NavigationConfig{
			Timeout:      45 * time.Second,
			MaxPerMinute: 12,
			RateLimitSignatures: []string{
				"net::ERR_HTTP_RESPONSE_CODE_FAILURE",
				"net::ERR_TOO_MANY_REDIRECTS",
			},
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			MinPriorityScore: 80,
			MinPostCount:     50000,
			MaxVariations:    5,
		},
		Traversal: TraversalConfig{
			MaxClicks:                50,
			MaxConsecutiveDuplicates: 5,
			MaxLanguageRejections:    5,
			MaxNoNewPostPasses:       5,
			ScrollDuplicateThreshold: 2,
			ScrollClickThreshold:     8,
			EvictionTolerance:        50,
			ScrollDistance:           900,
		},
		Validation: ValidationConfig{
			TargetLanguage:       "por",
			AutoApproveBioLength: 100,
			ActivityThreshold:    40,
			RecencyWeight:        0.6,
			FrequencyWeight:      0.4,
			FrequencyWindowDays:  30,
			DefaultCountryCode:   "BR",
		},
		Resilience: ResilienceConfig{
			MaxConsecutiveErrors: 5,
			MaxSessionInvalid:    3,
			MaxAccountFailures:   3,
			AccountCooldown:      60 * time.Minute,
			IPCooldown:           30 * time.Minute,
			DelayMultiplierStep:  1.5,
			MaxDelayMultiplier:   4.0,
		},
		Store: StoreConfig{
			Driver: "sqlite3",
			DSN:    "igleads.db",
		},
		Storage: StorageConfig{
			CookieDir: "cookies",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	accounts, err := accountsFromEnv()
	if err != nil {
		errs = append(errs, err)
	}
	if len(accounts) > 0 {
		c.Accounts = accounts
	}

	proxies, err := proxiesFromEnv()
	if err != nil {
		errs = append(errs, err)
	}
	if len(proxies) > 0 {
		c.Proxies = proxies
	}

	if v := os.Getenv("IGLEADS_HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) != "false"
	}
	if v := os.Getenv("IGLEADS_CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv("IGLEADS_USER_AGENT"); v != "" {
		c.Browser.UserAgent = v
	}
	if v := os.Getenv("IGLEADS_MANUAL_LOGIN_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGLEADS_MANUAL_LOGIN_WINDOW: %w", err))
		} else {
			c.Browser.ManualLoginWindow = d
		}
	}
	if v := os.Getenv("IGLEADS_TARGET_LANGUAGE"); v != "" {
		c.Validation.TargetLanguage = v
	}
	if v := os.Getenv("IGLEADS_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("IGLEADS_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("IGLEADS_COOKIE_DIR"); v != "" {
		c.Storage.CookieDir = v
	}
	if v := os.Getenv("IGLEADS_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("IGLEADS_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}
	if v := os.Getenv("IGLEADS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGLEADS_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// accountsFromEnv reads IGLEADS_ACCOUNT_<n>_* in index order, stopping at the first gap
func accountsFromEnv() ([]AccountConfig, error) {
	var accounts []AccountConfig
	for i := 1; i <= maxEnvAccounts; i++ {
		prefix := fmt.Sprintf("IGLEADS_ACCOUNT_%d_", i)
		username := os.Getenv(prefix + "USERNAME")
		if username == "" {
			break
		}
		accounts = append(accounts, AccountConfig{
			Username:   username,
			Password:   os.Getenv(prefix + "PASSWORD"),
			Handle:     os.Getenv(prefix + "HANDLE"),
			UserID:     os.Getenv(prefix + "USER_ID"),
			CookieFile: os.Getenv(prefix + "COOKIE_FILE"),
		})
	}
	return accounts, nil
}

func proxiesFromEnv() ([]ProxyConfig, error) {
	var proxies []ProxyConfig
	for i := 1; i <= maxEnvAccounts; i++ {
		prefix := fmt.Sprintf("IGLEADS_PROXY_%d_", i)
		host := os.Getenv(prefix + "HOST")
		if host == "" {
			break
		}
		port, err := strconv.Atoi(os.Getenv(prefix + "PORT"))
		if err != nil {
			return proxies, fmt.Errorf("%sPORT: %w", prefix, err)
		}
		proxies = append(proxies, ProxyConfig{
			Host:     host,
			Port:     port,
			Username: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
			Protocol: os.Getenv(prefix + "PROTOCOL"),
		})
	}
	return proxies, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igleads.yaml",
		".igleads.yml",
		filepath.Join(home, ".config", "igleads", "config.yaml"),
		filepath.Join(home, ".config", "igleads", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account is required"))
	}
	seen := make(map[string]bool)
	for i, acc := range c.Accounts {
		if acc.Username == "" {
			errs = append(errs, fmt.Errorf("account %d: username is required", i+1))
			continue
		}
		if seen[acc.Username] {
			errs = append(errs, fmt.Errorf("account %d: duplicate username %q", i+1, acc.Username))
		}
		seen[acc.Username] = true
	}
	for i, p := range c.Proxies {
		if p.Host == "" || p.Port <= 0 {
			errs = append(errs, fmt.Errorf("proxy %d: host and port are required", i+1))
		}
	}

	// Pacing is anti-detection behaviour: it can be tuned but not switched off
	windows := map[string]DelayWindow{
		"action":           c.Pacing.Action,
		"navigation":       c.Pacing.Navigation,
		"typing":           c.Pacing.Typing,
		"scroll":           c.Pacing.Scroll,
		"between_profiles": c.Pacing.BetweenProfiles,
		"between_hashtags": c.Pacing.BetweenHashtags,
	}
	for name, w := range windows {
		if w.Max <= 0 {
			errs = append(errs, fmt.Errorf("pacing.%s: max delay must be positive", name))
		}
		if w.Min > w.Max {
			errs = append(errs, fmt.Errorf("pacing.%s: min delay exceeds max", name))
		}
	}

	if c.Navigation.Timeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Navigation.MaxPerMinute <= 0 {
		errs = append(errs, errors.New("navigation max per minute must be positive"))
	}

	if c.Traversal.MaxClicks <= 0 || c.Traversal.MaxConsecutiveDuplicates <= 0 ||
		c.Traversal.MaxLanguageRejections <= 0 || c.Traversal.MaxNoNewPostPasses <= 0 {
		errs = append(errs, errors.New("traversal budgets must be positive"))
	}

	if c.Validation.TargetLanguage == "" {
		errs = append(errs, errors.New("target language is required"))
	}

	if c.Resilience.MaxConsecutiveErrors <= 0 {
		errs = append(errs, errors.New("max consecutive errors must be positive"))
	}
	if c.Resilience.MaxSessionInvalid <= 0 {
		errs = append(errs, errors.New("max session invalid must be positive"))
	}
	if c.Resilience.MaxAccountFailures <= 0 {
		errs = append(errs, errors.New("max account failures must be positive"))
	}

	validDrivers := map[string]bool{"sqlite3": true, "postgres": true}
	if !c.Store.DryRun && !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.Store.Driver))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if dryRun, ok := flags["dry-run"].(bool); ok && dryRun {
		c.Store.DryRun = true
	}
	if dsn, ok := flags["store-dsn"].(string); ok && dsn != "" {
		c.Store.DSN = dsn
	}
	if driver, ok := flags["store-driver"].(string); ok && driver != "" {
		c.Store.Driver = driver
	}
	if lang, ok := flags["language"].(string); ok && lang != "" {
		c.Validation.TargetLanguage = lang
	}
	if discover, ok := flags["discover"].(bool); ok {
		c.Discovery.Enabled = discover
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igleads.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
