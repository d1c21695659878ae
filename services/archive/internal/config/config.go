package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location; ARCHIVE_CONFIG overrides it.
const ConfigPath = "config.yaml"

const (
	defaultDatabaseURL    = "images.db"
	defaultBlobBackend    = "file"
	defaultDataDir        = "user_images"
	defaultMaxUploadBytes = 20 << 20
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	DatabaseURL               string   `yaml:"databaseURL"`
	BlobBackend               string   `yaml:"blobBackend"`
	DataDir                   string   `yaml:"dataDir"`
	MinioEndpoint             string   `yaml:"minioEndpoint"`
	MinioAccessKey            string   `yaml:"minioAccessKey"`
	MinioSecretKey            string   `yaml:"minioSecretKey"`
	MinioBucket               string   `yaml:"minioBucket"`
	MinioUseSSL               bool     `yaml:"minioUseSSL"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	UploadRateLimitPerMinute  int      `yaml:"uploadRateLimitPerMinute"`
	MaxUploadBytes            int64    `yaml:"maxUploadBytes"`
	InternalJWTKeyID          string   `yaml:"internalJWTKeyID"`
	InternalJWTPublicKeyPath  string   `yaml:"internalJWTPublicKeyPath"`
	InternalJWTAllowedIssuers []string `yaml:"internalJWTAllowedIssuers"`
	JWTLeeway                 string   `yaml:"jwtLeeway"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if v := os.Getenv("ARCHIVE_CONFIG"); v != "" {
		path = v
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ARCHIVE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ARCHIVE_BLOB_BACKEND"); v != "" {
		cfg.BlobBackend = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("ARCHIVE_UPLOAD_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("ARCHIVE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("INTERNAL_JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("INTERNAL_JWT_ALLOWED_ISSUERS"); v != "" {
		cfg.InternalJWTAllowedIssuers = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.BlobBackend == "" {
		cfg.BlobBackend = defaultBlobBackend
	}
	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(cfg.BlobBackend))
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.BlobBackend {
	case "file":
	case "minio":
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required when blobBackend is minio")
		}
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioAccessKey and minioSecretKey are required when blobBackend is minio")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when blobBackend is minio")
		}
	default:
		return fmt.Errorf("config: unknown blobBackend %q (want file or minio)", cfg.BlobBackend)
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: uploadRateLimitPerMinute must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when uploadRateLimitPerMinute is set")
	}
	if cfg.InternalJWTPublicKeyPath == "" {
		return errors.New("config: internalJWTPublicKeyPath is required (set in config.yaml or INTERNAL_JWT_PUBLIC_KEY_PATH)")
	}
	if len(cfg.InternalJWTAllowedIssuers) == 0 {
		return errors.New("config: internalJWTAllowedIssuers is required (set in config.yaml or INTERNAL_JWT_ALLOWED_ISSUERS)")
	}
	return nil
}

func splitCSV(value string) []string {
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

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
