package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vignette/internal/models"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7480"
	DefaultDBFileName = ".vignette.db"
	DefaultLogLevel   = "debug"

	DefaultStorageType           = "fs"
	DefaultRetryMaxTries   uint  = 3
	DefaultRetryInitial          = 100 * time.Millisecond
	DefaultRetryMaxWait          = 2 * time.Second
	DefaultCacheType             = "none"
	DefaultRedisPrefix           = "vignette"
	DefaultCacheTTL              = 24 * time.Hour
	DefaultMaxUploadBytes  int64 = 20 * 1024 * 1024
	DefaultMultipartMemory int64 = 8 * 1024 * 1024
	DefaultMaxConcurrent   int64 = 4
	DefaultMissingPolicy         = "placeholder"
	DefaultGCBatchSize           = 500

	configFileName           = ".vignette.toml"
	configDirEnvKey          = "VIGNETTE_CONFIG_DIR"
	trustProjectConfigEnvKey = "VIGNETTE_TRUST_PROJECT_CONFIG"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// StorageConfig selects and tunes the blob backend.
type StorageConfig struct {
	Type             string   `toml:"type"`
	Root             string   `toml:"root"`
	Bucket           string   `toml:"bucket"`
	Region           string   `toml:"region"`
	Endpoint         string   `toml:"endpoint"`
	Prefix           string   `toml:"prefix"`
	RetryMaxTries    uint     `toml:"retry_max_tries"`
	RetryInitialWait Duration `toml:"retry_initial_wait"`
	RetryMaxWait     Duration `toml:"retry_max_wait"`
}

// CacheConfig selects the derivative lookup index.
type CacheConfig struct {
	Type          string   `toml:"type"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	RedisPrefix   string   `toml:"redis_prefix"`
	TTL           Duration `toml:"ttl"`
}

// UploadsConfig bounds accepted originals.
type UploadsConfig struct {
	MaxUploadBytes     int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types"`
}

// GenerationConfig tunes derivative generation and fallbacks.
type GenerationConfig struct {
	MaxConcurrent      int64    `toml:"max_concurrent"`
	WaitTimeout        Duration `toml:"wait_timeout"`
	Timeout            Duration `toml:"timeout"`
	MissingPolicy      string   `toml:"missing_policy"`
	PublicBaseURL      string   `toml:"public_base_url"`
	PresetsFile        string   `toml:"presets_file"`
	DefaultPlaceholder string   `toml:"default_placeholder"`
}

// GCConfig tunes garbage collection.
type GCConfig struct {
	BatchSize int `toml:"batch_size"`
	// Interval runs GC in the server on a timer. Zero disables it.
	Interval Duration `toml:"interval"`
}

// Config defines runtime configuration for vignette.
type Config struct {
	APIURL   string `toml:"api_url"`
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`

	Storage    StorageConfig                `toml:"storage"`
	Cache      CacheConfig                  `toml:"cache"`
	Uploads    UploadsConfig                `toml:"uploads"`
	Generation GenerationConfig             `toml:"generation"`
	GC         GCConfig                     `toml:"gc"`
	Presets    map[string]models.PresetSpec `toml:"presets"`
	// Placeholders maps placeholder names used by presets to URLs.
	Placeholders map[string]string `toml:"placeholders"`

	TrustedProjectConfigPath string `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Type:             DefaultStorageType,
			RetryMaxTries:    DefaultRetryMaxTries,
			RetryInitialWait: Duration{DefaultRetryInitial},
			RetryMaxWait:     Duration{DefaultRetryMaxWait},
		},
		Cache: CacheConfig{
			Type:        DefaultCacheType,
			RedisPrefix: DefaultRedisPrefix,
			TTL:         Duration{DefaultCacheTTL},
		},
		Uploads: UploadsConfig{
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMemory,
		},
		Generation: GenerationConfig{
			MaxConcurrent: DefaultMaxConcurrent,
			MissingPolicy: DefaultMissingPolicy,
		},
		GC: GCConfig{
			BatchSize: DefaultGCBatchSize,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"storage.type",
	"storage.root",
	"storage.bucket",
	"storage.region",
	"storage.endpoint",
	"storage.prefix",
	"storage.retry_max_tries",
	"storage.retry_initial_wait",
	"storage.retry_max_wait",
	"cache.type",
	"cache.redis_addr",
	"cache.redis_db",
	"cache.redis_prefix",
	"cache.ttl",
	"uploads.max_upload_bytes",
	"uploads.multipart_max_memory",
	"uploads.allowed_media_types",
	"generation.max_concurrent",
	"generation.wait_timeout",
	"generation.timeout",
	"generation.missing_policy",
	"generation.public_base_url",
	"generation.presets_file",
	"generation.default_placeholder",
	"gc.batch_size",
	"gc.interval",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.type":
		return c.Storage.Type, nil
	case "storage.root":
		return c.Storage.Root, nil
	case "storage.bucket":
		return c.Storage.Bucket, nil
	case "storage.region":
		return c.Storage.Region, nil
	case "storage.endpoint":
		return c.Storage.Endpoint, nil
	case "storage.prefix":
		return c.Storage.Prefix, nil
	case "storage.retry_max_tries":
		return strconv.FormatUint(uint64(c.Storage.RetryMaxTries), 10), nil
	case "storage.retry_initial_wait":
		return c.Storage.RetryInitialWait.String(), nil
	case "storage.retry_max_wait":
		return c.Storage.RetryMaxWait.String(), nil
	case "cache.type":
		return c.Cache.Type, nil
	case "cache.redis_addr":
		return c.Cache.RedisAddr, nil
	case "cache.redis_db":
		return strconv.Itoa(c.Cache.RedisDB), nil
	case "cache.redis_prefix":
		return c.Cache.RedisPrefix, nil
	case "cache.ttl":
		return c.Cache.TTL.String(), nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "generation.max_concurrent":
		return strconv.FormatInt(c.Generation.MaxConcurrent, 10), nil
	case "generation.wait_timeout":
		return c.Generation.WaitTimeout.String(), nil
	case "generation.timeout":
		return c.Generation.Timeout.String(), nil
	case "generation.missing_policy":
		return c.Generation.MissingPolicy, nil
	case "generation.public_base_url":
		return c.Generation.PublicBaseURL, nil
	case "generation.presets_file":
		return c.Generation.PresetsFile, nil
	case "generation.default_placeholder":
		return c.Generation.DefaultPlaceholder, nil
	case "gc.batch_size":
		return strconv.Itoa(c.GC.BatchSize), nil
	case "gc.interval":
		return c.GC.Interval.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "fs":
	case "s3", "gcs":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for storage.type=%s", c.Storage.Type)
		}
	default:
		return fmt.Errorf("invalid storage.type %q (want fs, s3 or gcs)", c.Storage.Type)
	}
	switch c.Cache.Type {
	case "none", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache.redis_addr is required for cache.type=redis")
		}
	default:
		return fmt.Errorf("invalid cache.type %q (want none, memory or redis)", c.Cache.Type)
	}
	switch c.Generation.MissingPolicy {
	case "placeholder", "error":
	default:
		return fmt.Errorf("invalid generation.missing_policy %q (want placeholder or error)", c.Generation.MissingPolicy)
	}
	return nil
}

// BlobRoot returns the local blob directory, next to the database unless
// storage.root is set.
func (c *Config) BlobRoot() string {
	if root := strings.TrimSpace(c.Storage.Root); root != "" {
		return root
	}
	return filepath.Join(filepath.Dir(c.DBPath), ".vignette", "blobs")
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.applyEnv()
	cfg.normalizeDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	set := func(key string, dst *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
		}
	}
	set("VIGNETTE_API_URL", &c.APIURL)
	set("VIGNETTE_DB", &c.DBPath)
	set("VIGNETTE_STORAGE_TYPE", &c.Storage.Type)
	set("VIGNETTE_STORAGE_ROOT", &c.Storage.Root)
	set("VIGNETTE_STORAGE_BUCKET", &c.Storage.Bucket)
	set("VIGNETTE_STORAGE_REGION", &c.Storage.Region)
	set("VIGNETTE_STORAGE_ENDPOINT", &c.Storage.Endpoint)
	set("VIGNETTE_CACHE_TYPE", &c.Cache.Type)
	set("VIGNETTE_REDIS_ADDR", &c.Cache.RedisAddr)
	set("VIGNETTE_REDIS_PASSWORD", &c.Cache.RedisPassword)
	set("VIGNETTE_PUBLIC_BASE_URL", &c.Generation.PublicBaseURL)
	set("VIGNETTE_PRESETS_FILE", &c.Generation.PresetsFile)

	if raw := strings.TrimSpace(os.Getenv("VIGNETTE_UPLOAD_ALLOWED_MEDIA_TYPES")); raw != "" {
		c.Uploads.AllowedMediaTypes = splitCSV(raw)
	}
	if c.Cache.RedisAddr != "" && c.Cache.Type == DefaultCacheType && os.Getenv("VIGNETTE_CACHE_TYPE") == "" {
		c.Cache.Type = "redis"
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.multipart_max_memory", "generation.max_concurrent":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "gc.batch_size", "storage.retry_max_tries":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "cache.redis_db":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "storage.retry_initial_wait", "storage.retry_max_wait", "cache.ttl",
		"generation.wait_timeout", "generation.timeout", "gc.interval":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration like 250ms or 5s", key)
		}
		return value, nil
	case "storage.type":
		if value != "fs" && value != "s3" && value != "gcs" {
			return nil, fmt.Errorf("%s must be fs, s3 or gcs", key)
		}
		return value, nil
	case "cache.type":
		if value != "none" && value != "memory" && value != "redis" {
			return nil, fmt.Errorf("%s must be none, memory or redis", key)
		}
		return value, nil
	case "generation.missing_policy":
		if value != "placeholder" && value != "error" {
			return nil, fmt.Errorf("%s must be placeholder or error", key)
		}
		return value, nil
	case "uploads.allowed_media_types":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultStorageType
	}
	if c.Storage.RetryMaxTries == 0 {
		c.Storage.RetryMaxTries = DefaultRetryMaxTries
	}
	c.Cache.Type = strings.ToLower(strings.TrimSpace(c.Cache.Type))
	if c.Cache.Type == "" {
		c.Cache.Type = DefaultCacheType
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = DefaultRedisPrefix
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMemory
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
	if c.Generation.MaxConcurrent <= 0 {
		c.Generation.MaxConcurrent = DefaultMaxConcurrent
	}
	c.Generation.MissingPolicy = strings.ToLower(strings.TrimSpace(c.Generation.MissingPolicy))
	if c.Generation.MissingPolicy == "" {
		c.Generation.MissingPolicy = DefaultMissingPolicy
	}
	if c.GC.BatchSize <= 0 {
		c.GC.BatchSize = DefaultGCBatchSize
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
