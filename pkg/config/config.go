package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen          = ":5232"
	defaultDAVPrefix       = "/dav"
	defaultMaxResourceSize = 10000000
	defaultReportWorkers   = 4
	defaultWarningHeader   = "X-Card-Validation-Warning"
)

// StoreConfig selects the card storage backend.
type StoreConfig struct {
	// Driver is "fs" or "postgres".
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	DSN    string `yaml:"dsn"`
	// Watch tracks out-of-band changes under Dir and bumps collection ctags.
	Watch bool `yaml:"watch"`

	watchSet bool `yaml:"-"`
}

func (c *StoreConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawStore struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
		DSN    string `yaml:"dsn"`
		Watch  bool   `yaml:"watch"`
	}
	var raw rawStore
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Driver = raw.Driver
	c.Dir = raw.Dir
	c.DSN = raw.DSN
	c.Watch = raw.Watch
	c.watchSet = hasKey(value, "watch")
	return nil
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	enabledSet bool `yaml:"-"`
}

func (c *MetricsConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawMetrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	}
	var raw rawMetrics
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Enabled = raw.Enabled
	c.Path = raw.Path
	c.enabledSet = hasKey(value, "enabled")
	return nil
}

// hasKey reports whether a mapping node sets key explicitly.
func hasKey(value *yaml.Node, key string) bool {
	if value.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if strings.TrimSpace(value.Content[i].Value) == key {
			return true
		}
	}
	return false
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "console", "json" or empty for console on a TTY and json otherwise.
	Format    string `yaml:"format"`
	AccessLog bool   `yaml:"access_log"`
	// AccessLogPath appends access lines to a file instead of stdout.
	AccessLogPath         string `yaml:"access_log_path"`
	AccessLogFormat       string `yaml:"access_log_format"`
	AccessLogFormatPreset string `yaml:"access_log_format_preset"`

	accessLogSet bool `yaml:"-"`
}

func (c *LoggingConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawLogging struct {
		Level                 string `yaml:"level"`
		Format                string `yaml:"format"`
		AccessLog             bool   `yaml:"access_log"`
		AccessLogPath         string `yaml:"access_log_path"`
		AccessLogFormat       string `yaml:"access_log_format"`
		AccessLogFormatPreset string `yaml:"access_log_format_preset"`
	}
	var raw rawLogging
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Level = raw.Level
	c.Format = raw.Format
	c.AccessLog = raw.AccessLog
	c.AccessLogPath = raw.AccessLogPath
	c.AccessLogFormat = raw.AccessLogFormat
	c.AccessLogFormatPreset = raw.AccessLogFormatPreset
	c.accessLogSet = hasKey(value, "access_log")
	return nil
}

type Config struct {
	Server struct {
		Listen         string `yaml:"listen"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		// DAVPrefix is the URL path under which the store root is served.
		DAVPrefix       string `yaml:"dav_prefix"`
		MaxResourceSize int64  `yaml:"max_resource_size"`
		// ReportWorkers bounds parallel filter evaluation per REPORT. Values
		// below 2 evaluate sequentially.
		ReportWorkers int `yaml:"report_workers"`
	} `yaml:"server"`

	Store StoreConfig `yaml:"store"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`

	Validation struct {
		WarningHeader string `yaml:"warning_header"`
		ProductID     string `yaml:"product_id"`
	} `yaml:"validation"`
}

// Load reads path. A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		// #nosec G304 -- path is provided by trusted config/flag.
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = defaultListen
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 60000
	}
	if strings.TrimSpace(cfg.Server.DAVPrefix) == "" {
		cfg.Server.DAVPrefix = defaultDAVPrefix
	}
	cfg.Server.DAVPrefix = "/" + strings.Trim(strings.TrimSpace(cfg.Server.DAVPrefix), "/")
	if cfg.Server.MaxResourceSize == 0 {
		cfg.Server.MaxResourceSize = defaultMaxResourceSize
	}
	if cfg.Server.ReportWorkers == 0 {
		cfg.Server.ReportWorkers = defaultReportWorkers
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "fs"
	}
	if strings.TrimSpace(cfg.Store.Dir) == "" {
		cfg.Store.Dir = "./data"
	}
	// default true for the fs driver
	if !cfg.Store.watchSet && cfg.Store.Driver == "fs" {
		cfg.Store.Watch = true
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.accessLogSet {
		cfg.Logging.AccessLog = true
	}

	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if !cfg.Metrics.enabledSet {
		cfg.Metrics.Enabled = true
	}

	if strings.TrimSpace(cfg.Validation.WarningHeader) == "" {
		cfg.Validation.WarningHeader = defaultWarningHeader
	}
}

func applyEnvOverrides(cfg *Config) {
	applyEnvServerOverrides(cfg)
	applyEnvStoreOverrides(cfg)
	applyEnvLoggingOverrides(cfg)
	cfg.Metrics.Enabled = envBool("CARDQ_METRICS_ENABLED", cfg.Metrics.Enabled)
	if v := strings.TrimSpace(os.Getenv("CARDQ_VALIDATION_PRODUCT_ID")); v != "" {
		cfg.Validation.ProductID = v
	}
}

func applyEnvServerOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CARDQ_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if n, ok := envInt("CARDQ_READ_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.ReadTimeoutMs = n
	}
	if n, ok := envInt("CARDQ_WRITE_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.WriteTimeoutMs = n
	}
	if n, ok := envInt("CARDQ_REPORT_WORKERS"); ok {
		cfg.Server.ReportWorkers = n
	}
	if n, ok := envInt("CARDQ_MAX_RESOURCE_SIZE"); ok {
		cfg.Server.MaxResourceSize = int64(n)
	}
}

func applyEnvStoreOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CARDQ_STORE_DRIVER")); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CARDQ_STORE_DIR")); v != "" {
		cfg.Store.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("CARDQ_STORE_DSN")); v != "" {
		cfg.Store.DSN = v
	}
	cfg.Store.Watch = envBool("CARDQ_STORE_WATCH", cfg.Store.Watch)
}

func applyEnvLoggingOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CARDQ_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CARDQ_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	cfg.Logging.AccessLog = envBool("CARDQ_ACCESS_LOG", cfg.Logging.AccessLog)
	if v := strings.TrimSpace(os.Getenv("CARDQ_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
	if v := os.Getenv("CARDQ_ACCESS_LOG_FORMAT"); strings.TrimSpace(v) != "" {
		cfg.Logging.AccessLogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("CARDQ_ACCESS_LOG_FORMAT_PRESET")); v != "" {
		cfg.Logging.AccessLogFormatPreset = v
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "fs":
		if strings.TrimSpace(cfg.Store.Dir) == "" {
			return errors.New("store.dir is required when store.driver=fs")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return errors.New("store.dsn is required when store.driver=postgres")
		}
		if cfg.Store.Watch && cfg.Store.watchSet {
			return errors.New("store.watch is only supported when store.driver=fs")
		}
	default:
		return errors.New("store.driver must be fs or postgres")
	}
	if cfg.Server.MaxResourceSize < 0 {
		return errors.New("server.max_resource_size must be non-negative")
	}
	if cfg.Server.ReportWorkers < 0 {
		return errors.New("server.report_workers must be non-negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		return errors.New("logging.format must be console or json")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}
