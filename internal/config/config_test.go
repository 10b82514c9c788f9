package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vignette/internal/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != "http://127.0.0.1:7480" {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Type != "fs" {
		t.Fatalf("expected fs storage, got %q", cfg.Storage.Type)
	}
	if cfg.Storage.RetryMaxTries != DefaultRetryMaxTries {
		t.Fatalf("expected retry tries %d, got %d", DefaultRetryMaxTries, cfg.Storage.RetryMaxTries)
	}
	if cfg.Cache.Type != "none" {
		t.Fatalf("expected no cache, got %q", cfg.Cache.Type)
	}
	if cfg.Uploads.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected upload max default %d, got %d", DefaultMaxUploadBytes, cfg.Uploads.MaxUploadBytes)
	}
	if cfg.Generation.MissingPolicy != "placeholder" {
		t.Fatalf("expected placeholder policy, got %q", cfg.Generation.MissingPolicy)
	}
	if cfg.GC.BatchSize != DefaultGCBatchSize {
		t.Fatalf("expected gc batch default %d, got %d", DefaultGCBatchSize, cfg.GC.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".vignette.toml")
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[storage]
type = "s3"
bucket = "media"
retry_initial_wait = "250ms"

[generation]
wait_timeout = "2s"
missing_policy = "error"

[presets.thumb]
width = 100
height = 100
fit = "cover"
format = "jpeg"
placeholder = "avatar"

[placeholders]
avatar = "/static/avatar.png"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.Bucket != "media" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.RetryInitialWait.Duration != 250*time.Millisecond {
		t.Fatalf("expected 250ms retry wait, got %s", cfg.Storage.RetryInitialWait)
	}
	if cfg.Storage.RetryMaxWait.Duration != DefaultRetryMaxWait {
		t.Fatalf("expected default retry max wait to survive, got %s", cfg.Storage.RetryMaxWait)
	}
	if cfg.Generation.WaitTimeout.Duration != 2*time.Second {
		t.Fatalf("expected 2s wait timeout, got %s", cfg.Generation.WaitTimeout)
	}
	thumb, ok := cfg.Presets["thumb"]
	if !ok {
		t.Fatalf("expected thumb preset, got %+v", cfg.Presets)
	}
	if thumb.Width != 100 || thumb.Fit != models.FitCover || thumb.Format != models.FormatJPEG || thumb.Holder != "avatar" {
		t.Fatalf("unexpected thumb preset: %+v", thumb)
	}
	if cfg.Placeholders["avatar"] != "/static/avatar.png" {
		t.Fatalf("unexpected placeholders: %+v", cfg.Placeholders)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFileInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[generation]\nwait_timeout = \"soon\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.vignette.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "ftp" }, want: "storage.type"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Type = "s3" }, want: "storage.bucket"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Type = "gcs" }, want: "storage.bucket"},
		{name: "redis without addr", mutate: func(c *Config) { c.Cache.Type = "redis" }, want: "cache.redis_addr"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Type = "memcached" }, want: "cache.type"},
		{name: "unknown policy", mutate: func(c *Config) { c.Generation.MissingPolicy = "ignore" }, want: "missing_policy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"log_level",
		"storage.type",
		"storage.bucket",
		"cache.redis_addr",
		"uploads.max_upload_bytes",
		"uploads.allowed_media_types",
		"generation.wait_timeout",
		"generation.missing_policy",
		"gc.batch_size",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	for _, key := range []string{"invalid", "cache.redis_password", "presets.thumb.width"} {
		if IsAllowedKey(key) {
			t.Fatalf("expected %q to not be allowed", key)
		}
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "http://test:1234"
	cfg.DBPath = "/tmp/test.db"
	cfg.LogLevel = "warn"
	cfg.Storage.Bucket = "media"
	cfg.Cache.RedisDB = 3
	cfg.Uploads.AllowedMediaTypes = []string{"image/jpeg", "image/png"}
	cfg.Generation.WaitTimeout = Duration{1500 * time.Millisecond}

	tests := map[string]string{
		"api_url":                     "http://test:1234",
		"db_path":                     "/tmp/test.db",
		"log_level":                   "warn",
		"storage.type":                "fs",
		"storage.bucket":              "media",
		"storage.retry_max_tries":     "3",
		"storage.retry_initial_wait":  "100ms",
		"cache.redis_db":              "3",
		"uploads.allowed_media_types": "image/jpeg,image/png",
		"generation.wait_timeout":     "1.5s",
		"generation.max_concurrent":   "4",
		"gc.batch_size":               "500",
		"gc.interval":                 "0s",
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("Get(%q) = %q (err: %v), want %q", key, got, err, want)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestEveryAllowedKeyHasGetter(t *testing.T) {
	cfg := Default()
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("allowed key %q has no getter: %v", key, err)
		}
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "api_url", "http://example:1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example:1" {
		t.Fatalf("expected api_url, got %q", cfg.APIURL)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("log_level = \"info\"\napi_url = \"http://keep\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected 'error', got %q", cfg.LogLevel)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url 'http://keep', got %q", cfg.APIURL)
	}
}

func TestSetNestedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.toml")
	for key, value := range map[string]string{
		"gc.batch_size":           "321",
		"generation.wait_timeout": "750ms",
		"storage.type":            "gcs",
		"storage.bucket":          "b",
	} {
		if err := SetKey(path, key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GC.BatchSize != 321 {
		t.Fatalf("expected gc batch_size 321, got %d", cfg.GC.BatchSize)
	}
	if cfg.Generation.WaitTimeout.Duration != 750*time.Millisecond {
		t.Fatalf("expected 750ms wait timeout, got %s", cfg.Generation.WaitTimeout)
	}
	if cfg.Storage.Type != "gcs" || cfg.Storage.Bucket != "b" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	for key, value := range map[string]string{
		"invalid_key":               "value",
		"gc.batch_size":             "-1",
		"generation.wait_timeout":   "later",
		"storage.type":              "ftp",
		"generation.missing_policy": "ignore",
		"cache.type":                "memcached",
	} {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VIGNETTE_CONFIG_DIR", dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ".vignette.toml") {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, ".vignette.toml") {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, ".vignette.toml"), []byte("api_url = \"http://127.0.0.1:9001\"\n"), 0644); err != nil {
		t.Fatalf("write override config: %v", err)
	}

	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, ".vignette.toml"), []byte("api_url = \"http://wrong\"\n"), 0644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}
	chdir(t, workspace)

	t.Setenv("VIGNETTE_CONFIG_DIR", configDir)
	t.Setenv("VIGNETTE_DB", "")
	t.Setenv("VIGNETTE_API_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url override, got %q", cfg.APIURL)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
	if cfg.BlobRoot() != filepath.Join(workspace, ".vignette", "blobs") {
		t.Fatalf("unexpected blob root %q", cfg.BlobRoot())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VIGNETTE_CONFIG_DIR", t.TempDir())
	t.Setenv("VIGNETTE_API_URL", "http://example.com:8080")
	t.Setenv("VIGNETTE_DB", "/tmp/override.db")
	t.Setenv("VIGNETTE_STORAGE_TYPE", "S3")
	t.Setenv("VIGNETTE_STORAGE_BUCKET", "media")
	t.Setenv("VIGNETTE_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("VIGNETTE_CACHE_TYPE", "")
	t.Setenv("VIGNETTE_UPLOAD_ALLOWED_MEDIA_TYPES", "image/PNG, image/jpeg ,image/png")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.DBPath)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.Bucket != "media" {
		t.Fatalf("expected s3 storage from env, got %+v", cfg.Storage)
	}
	if cfg.Cache.Type != "redis" {
		t.Fatalf("expected redis cache implied by VIGNETTE_REDIS_ADDR, got %q", cfg.Cache.Type)
	}
	got := strings.Join(cfg.Uploads.AllowedMediaTypes, ",")
	if got != "image/jpeg,image/png" {
		t.Fatalf("expected normalized media types, got %q", got)
	}
}

func TestLoadFallsBackToDefaultLogLevelWhenConfiguredEmpty(t *testing.T) {
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, ".vignette.toml"), []byte("log_level = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	chdir(t, t.TempDir())

	t.Setenv("HOME", homeDir)
	t.Setenv("VIGNETTE_CONFIG_DIR", "")
	t.Setenv("VIGNETTE_TRUST_PROJECT_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	tests := []struct {
		name      string
		trust     string
		wantURL   string
		wantTrust bool
	}{
		{name: "ignored by default", trust: "", wantURL: "http://home", wantTrust: false},
		{name: "applied when trusted", trust: "true", wantURL: "http://project", wantTrust: true},
		{name: "invalid env value", trust: "definitely-not-bool", wantURL: "http://home", wantTrust: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			homeDir := t.TempDir()
			workspace := t.TempDir()
			if err := os.WriteFile(filepath.Join(homeDir, ".vignette.toml"), []byte("api_url = \"http://home\"\n"), 0o644); err != nil {
				t.Fatalf("write home config: %v", err)
			}
			if err := os.WriteFile(filepath.Join(workspace, ".vignette.toml"), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
				t.Fatalf("write project config: %v", err)
			}
			chdir(t, workspace)

			t.Setenv("HOME", homeDir)
			t.Setenv("VIGNETTE_CONFIG_DIR", "")
			t.Setenv("VIGNETTE_API_URL", "")
			t.Setenv("VIGNETTE_TRUST_PROJECT_CONFIG", tc.trust)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.APIURL != tc.wantURL {
				t.Fatalf("expected api_url %q, got %q", tc.wantURL, cfg.APIURL)
			}
			if got := cfg.TrustedProjectConfigPath != ""; got != tc.wantTrust {
				t.Fatalf("expected trusted=%v, got path %q", tc.wantTrust, cfg.TrustedProjectConfigPath)
			}
		})
	}
}
