package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cardq.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen: ":8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.Server.DAVPrefix != "/dav" {
		t.Fatalf("dav_prefix default=%q", cfg.Server.DAVPrefix)
	}
	if cfg.Server.MaxResourceSize != 10000000 {
		t.Fatalf("max_resource_size default=%d", cfg.Server.MaxResourceSize)
	}
	if cfg.Server.ReportWorkers != 4 {
		t.Fatalf("report_workers default=%d", cfg.Server.ReportWorkers)
	}
	if cfg.Store.Driver != "fs" || cfg.Store.Dir != "./data" || !cfg.Store.Watch {
		t.Fatalf("store defaults=%+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics defaults=%+v", cfg.Metrics)
	}
	if cfg.Validation.WarningHeader != "X-Card-Validation-Warning" {
		t.Fatalf("warning_header default=%q", cfg.Validation.WarningHeader)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.AccessLog {
		t.Fatalf("logging defaults=%+v", cfg.Logging)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":5232" {
		t.Fatalf("default listen=%q", cfg.Server.Listen)
	}
}

func TestLoad_ExplicitFalseKept(t *testing.T) {
	path := writeConfigFile(t, `
store:
  watch: false
metrics:
  enabled: false
logging:
  access_log: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Store.Watch {
		t.Fatalf("store.watch=false must be kept")
	}
	if cfg.Logging.AccessLog {
		t.Fatalf("logging.access_log=false must be kept")
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics.enabled=false must be kept")
	}
}

func TestLoad_NormalizesPrefix(t *testing.T) {
	path := writeConfigFile(t, `
server:
  dav_prefix: "cards/"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.DAVPrefix != "/cards" {
		t.Fatalf("dav_prefix=%q", cfg.Server.DAVPrefix)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
store:
  dir: /srv/cards
`)
	t.Setenv("CARDQ_LISTEN", ":9999")
	t.Setenv("CARDQ_READ_TIMEOUT_MS", "1234")
	t.Setenv("CARDQ_REPORT_WORKERS", "1")
	t.Setenv("CARDQ_MAX_RESOURCE_SIZE", "2048")
	t.Setenv("CARDQ_STORE_DIR", "/tmp/cards")
	t.Setenv("CARDQ_STORE_WATCH", "off")
	t.Setenv("CARDQ_LOG_LEVEL", "debug")
	t.Setenv("CARDQ_LOG_FORMAT", "json")
	t.Setenv("CARDQ_ACCESS_LOG_FORMAT_PRESET", "cardq_minimal")
	t.Setenv("CARDQ_METRICS_ENABLED", "no")
	t.Setenv("CARDQ_VALIDATION_PRODUCT_ID", "-//test//EN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":9999" || cfg.Server.ReadTimeoutMs != 1234 {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Server.ReportWorkers != 1 || cfg.Server.MaxResourceSize != 2048 {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Store.Dir != "/tmp/cards" || cfg.Store.Watch {
		t.Fatalf("store=%+v", cfg.Store)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.AccessLogFormatPreset != "cardq_minimal" {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics should be disabled")
	}
	if cfg.Validation.ProductID != "-//test//EN" {
		t.Fatalf("product_id=%q", cfg.Validation.ProductID)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "store:\n  driver: mysql\n",
		"postgres no dsn": "store:\n  driver: postgres\n",
		"postgres watch":  "store:\n  driver: postgres\n  dsn: postgres://x\n  watch: true\n",
		"negative size":   "server:\n  max_resource_size: -1\n",
		"bad log format":  "logging:\n  format: xml\n",
		"metrics path":    "metrics:\n  path: metrics\n",
		"bad yaml":        "server: [\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfigFile(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CARDQ_TEST_BOOL", "maybe")
	if !envBool("CARDQ_TEST_BOOL", true) {
		t.Fatalf("unparsable value should keep default")
	}
	t.Setenv("CARDQ_TEST_BOOL", "Y")
	if !envBool("CARDQ_TEST_BOOL", false) {
		t.Fatalf("Y should be true")
	}
}
