package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "jvm.yaml", `
max_call_depth: 64
class_path: [./classes, ./lib]
store:
  driver: sqlite3
  dsn: "file::memory:"
  conn_max_lifetime: 90s
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxCallDepth != 64 {
		t.Errorf("MaxCallDepth = %d, want 64", cfg.MaxCallDepth)
	}
	if len(cfg.ClassPath) != 2 || cfg.ClassPath[1] != "./lib" {
		t.Errorf("ClassPath = %v", cfg.ClassPath)
	}
	if cfg.Store.ConnMaxLifetime != 90*time.Second {
		t.Errorf("Store.ConnMaxLifetime = %v, want 90s", cfg.Store.ConnMaxLifetime)
	}
	// untouched keys keep their defaults
	if cfg.MaxHeapObjects != Default().MaxHeapObjects {
		t.Errorf("MaxHeapObjects = %d, want default", cfg.MaxHeapObjects)
	}
	if !cfg.TrackLeaks {
		t.Error("TrackLeaks should default to true")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "jvm.json", `{"max_heap_objects": 16, "trace": {"exporter": "stdout"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxHeapObjects != 16 {
		t.Errorf("MaxHeapObjects = %d, want 16", cfg.MaxHeapObjects)
	}
	if cfg.Trace.Exporter != "stdout" {
		t.Errorf("Trace.Exporter = %q, want stdout", cfg.Trace.Exporter)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "jvm.yaml", "max_call_dept: 10\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject a misspelt key")
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := writeFile(t, "jvm.yaml", "max_call_depth: 64\nlog:\n  level: info\n")

	t.Setenv("JVM_MAX_CALL_DEPTH", "128")
	t.Setenv("JVM_STORE_DSN", "postgres://env/classes")
	t.Setenv("JVM_STORE_DRIVER", "pgx")
	t.Setenv("JVM_STORE_CONN_MAX_IDLE_TIME", "2m")
	t.Setenv("JVM_CLASS_PATH", "a, b")
	t.Setenv("JVM_TRACK_LEAKS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxCallDepth != 128 {
		t.Errorf("MaxCallDepth = %d, want 128", cfg.MaxCallDepth)
	}
	if cfg.Store.DSN != "postgres://env/classes" || cfg.Store.Driver != "pgx" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.ConnMaxIdleTime != 2*time.Minute {
		t.Errorf("Store.ConnMaxIdleTime = %v, want 2m", cfg.Store.ConnMaxIdleTime)
	}
	if len(cfg.ClassPath) != 2 || cfg.ClassPath[0] != "a" || cfg.ClassPath[1] != "b" {
		t.Errorf("ClassPath = %v", cfg.ClassPath)
	}
	if cfg.TrackLeaks {
		t.Error("TrackLeaks should be overridden to false")
	}
	// Log.Level should remain from file
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestApplyEnvOverridesBadValue(t *testing.T) {
	t.Setenv("JVM_MAX_HEAP_OBJECTS", "lots")
	cfg := Default()
	err := ApplyEnvOverrides(EnvPrefix, cfg)
	if err == nil || !strings.Contains(err.Error(), "JVM_MAX_HEAP_OBJECTS") {
		t.Fatalf("ApplyEnvOverrides() error = %v, want mention of JVM_MAX_HEAP_OBJECTS", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero call depth", func(c *Config) { c.MaxCallDepth = 0 }, true},
		{"unbounded heap", func(c *Config) { c.MaxHeapObjects = 0 }, false},
		{"negative heap limit", func(c *Config) { c.MaxHeapObjects = -1 }, true},
		{"inverted versions", func(c *Config) { c.MinMajorVersion, c.MaxMajorVersion = 52, 50 }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad exporter", func(c *Config) { c.Trace.Exporter = "jaeger" }, true},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled, c.Metrics.Addr = true, "" }, true},
		{"store without driver", func(c *Config) { c.Store.DSN, c.Store.Driver = "x", "" }, true},
		{"store unknown driver", func(c *Config) { c.Store.DSN, c.Store.Driver = "x", "mysql" }, true},
		{"store pgx", func(c *Config) { c.Store.DSN, c.Store.Driver = "postgres://h/db", "pgx" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequiredFields(t *testing.T) {
	cfg := Default()
	validator := RequiredFields("Store.DSN")
	if err := validator.Validate(cfg); err == nil {
		t.Error("RequiredFields should fail for empty DSN")
	}

	cfg.Store.DSN = "file::memory:"
	if err := validator.Validate(cfg); err != nil {
		t.Errorf("RequiredFields should pass for valid config: %v", err)
	}

	if err := RequiredFields("Store.Nope").Validate(cfg); err == nil {
		t.Error("RequiredFields should fail for an unknown field")
	}
}

func TestRangeValidator(t *testing.T) {
	cfg := Default()
	cfg.Store.MaxOpenConns = 5

	validator := RangeValidator("Store.MaxOpenConns", 10, 100)
	if err := validator.Validate(cfg); err == nil {
		t.Error("RangeValidator should fail for value below minimum")
	}

	cfg.Store.MaxOpenConns = 50
	if err := validator.Validate(cfg); err != nil {
		t.Errorf("RangeValidator should pass for value in range: %v", err)
	}

	if err := RangeValidator("Log.Level", 0, 1).Validate(cfg); err == nil {
		t.Error("RangeValidator should fail for a non-numeric field")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.ClassPath = []string{"classes"}
	cfg.Store.DSN = "file:classes.db"

	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(dir, name)
		save := SaveYAML
		if strings.HasSuffix(name, ".json") {
			save = SaveJSON
		}
		if err := save(path, cfg); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("%s permissions = %o, want 600", name, perm)
		}

		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) = %v", name, err)
		}
		if got.Store.DSN != cfg.Store.DSN || got.Store.ConnMaxLifetime != cfg.Store.ConnMaxLifetime {
			t.Errorf("%s: Store = %+v, want %+v", name, got.Store, cfg.Store)
		}
	}
}
