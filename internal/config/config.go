package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"commerce/internal/pkg/imageproc"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultLogLevel          = "info"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultJWTTTL            = "24h"
	defaultMaxFileSizeMB     = "10"
	defaultCanonicalImageExt = ".jpg"
	defaultVariantsEnabled   = "true"
	defaultStorageDriver     = "local"
	defaultStoragePath       = "./uploads/assets"
	defaultPublicBaseURL     = "/static/assets"
	defaultTxTimeout         = "30s"
	defaultAtomicBulkDelete  = "false"
	defaultPurgeRetention    = "720h"
	defaultPurgeSchedule     = "@daily"
	defaultJPEGQuality       = "85"
)

type AppConfig struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string
	JWTTTL      time.Duration
	LogLevel    string
	CORSOrigins []string
	Asset       *AssetConfig
}

type AssetConfig struct {
	MaxFileSizeMB     int
	CanonicalImageExt string
	VariantsEnabled   bool
	Variants          []imageproc.SizeSpec
	StorageDriver     string
	StoragePath       string
	PublicBaseURL     string
	TxTimeout         time.Duration
	AtomicBulkDelete  bool
	PurgeRetention    time.Duration
	PurgeSchedule     string
	JPEGQuality       int
	OSS               OSSConfig
}

type OSSConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	Prefix          string
}

// StaticMountPath is the path part of PublicBaseURL, where the local driver
// serves stored files. Empty means nothing should be mounted.
func (c *AssetConfig) StaticMountPath() string {
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return p
}

// MaxFileSizeBytes is the upload ceiling checked against the raw buffer.
func (c *AssetConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel))
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	ttl, err := parseDurationEnv("JWT_TTL", defaultJWTTTL)
	if err != nil {
		return nil, err
	}
	cfg.JWTTTL = ttl

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must not be empty")
	}
	if isProdLike(cfg.AppEnv) && isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
		return nil, fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
	}

	asset, err := LoadAssetConfig()
	if err != nil {
		return nil, err
	}
	cfg.Asset = asset
	return cfg, nil
}

func LoadAssetConfig() (*AssetConfig, error) {
	cfg := &AssetConfig{}
	var err error

	cfg.MaxFileSizeMB, err = parseIntEnv("ASSET_MAX_FILE_SIZE_MB", defaultMaxFileSizeMB)
	if err != nil {
		return nil, err
	}
	cfg.JPEGQuality, err = parseIntEnv("ASSET_JPEG_QUALITY", defaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	cfg.TxTimeout, err = parseDurationEnv("ASSET_TX_TIMEOUT", defaultTxTimeout)
	if err != nil {
		return nil, err
	}
	cfg.PurgeRetention, err = parseDurationEnv("ASSET_PURGE_RETENTION", defaultPurgeRetention)
	if err != nil {
		return nil, err
	}

	cfg.CanonicalImageExt = normalizeExt(getEnvAllowEmpty("ASSET_CANONICAL_IMAGE_EXT", defaultCanonicalImageExt))
	cfg.VariantsEnabled = parseBoolEnv("ASSET_VARIANTS_ENABLED", defaultVariantsEnabled)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(getEnv("ASSET_STORAGE_DRIVER", defaultStorageDriver)))
	cfg.StoragePath = strings.TrimSpace(getEnv("ASSET_STORAGE_PATH", defaultStoragePath))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("ASSET_PUBLIC_BASE_URL", defaultPublicBaseURL)), "/")
	cfg.AtomicBulkDelete = parseBoolEnv("ASSET_ATOMIC_BULK_DELETE", defaultAtomicBulkDelete)
	cfg.PurgeSchedule = strings.TrimSpace(getEnv("ASSET_PURGE_SCHEDULE", defaultPurgeSchedule))

	cfg.OSS = OSSConfig{
		Region:          strings.TrimSpace(os.Getenv("OSS_REGION")),
		Bucket:          strings.TrimSpace(os.Getenv("OSS_BUCKET")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("OSS_ACCESS_KEY_ID")),
		AccessKeySecret: strings.TrimSpace(os.Getenv("OSS_ACCESS_KEY_SECRET")),
		Endpoint:        strings.TrimSpace(os.Getenv("OSS_ENDPOINT")),
		Prefix:          strings.Trim(strings.TrimSpace(os.Getenv("OSS_PREFIX")), "/"),
	}

	if path := strings.TrimSpace(os.Getenv("ASSET_VARIANTS_FILE")); path != "" {
		cfg.Variants, err = LoadVariants(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg.Variants = DefaultVariants()
	}

	if err := validateAssetConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateAssetConfig(cfg *AssetConfig) error {
	if cfg.MaxFileSizeMB <= 0 {
		return fmt.Errorf("ASSET_MAX_FILE_SIZE_MB must be > 0")
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return fmt.Errorf("ASSET_JPEG_QUALITY must be between 1 and 100")
	}
	if cfg.TxTimeout <= 0 {
		return fmt.Errorf("ASSET_TX_TIMEOUT must be > 0")
	}
	if cfg.PurgeRetention <= 0 {
		return fmt.Errorf("ASSET_PURGE_RETENTION must be > 0")
	}
	if cfg.CanonicalImageExt != "" && !imageproc.SupportedOutputExt(cfg.CanonicalImageExt) {
		return fmt.Errorf("ASSET_CANONICAL_IMAGE_EXT %q is not an encodable image format", cfg.CanonicalImageExt)
	}
	if err := validatePublicBaseURL(cfg.PublicBaseURL); err != nil {
		return err
	}
	switch cfg.StorageDriver {
	case "local":
		if cfg.StoragePath == "" {
			return fmt.Errorf("ASSET_STORAGE_PATH must not be empty")
		}
	case "oss":
		if cfg.OSS.Bucket == "" || cfg.OSS.Region == "" || cfg.OSS.AccessKeyID == "" || cfg.OSS.AccessKeySecret == "" {
			return fmt.Errorf("OSS_REGION, OSS_BUCKET, OSS_ACCESS_KEY_ID and OSS_ACCESS_KEY_SECRET are required for the oss driver")
		}
	default:
		return fmt.Errorf("ASSET_STORAGE_DRIVER must be one of: local, oss")
	}
	seen := make(map[string]bool, len(cfg.Variants))
	for _, v := range cfg.Variants {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variant %q: %w", v.Key, err)
		}
		if seen[v.Key] {
			return fmt.Errorf("variant %q is defined twice", v.Key)
		}
		seen[v.Key] = true
	}
	return nil
}

// validatePublicBaseURL accepts an absolute path ("/static/assets") or an
// absolute http(s) URL. Its path must be usable as a router prefix.
func validatePublicBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("ASSET_PUBLIC_BASE_URL %q is not a valid URL: %w", raw, err)
	}
	if u.IsAbs() {
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ASSET_PUBLIC_BASE_URL %q must be an http(s) URL or a path starting with /", raw)
		}
	} else if u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("ASSET_PUBLIC_BASE_URL %q must be an http(s) URL or a path starting with /", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("ASSET_PUBLIC_BASE_URL %q must not carry a query or fragment", raw)
	}
	if strings.ContainsAny(u.Path, ":*") {
		return fmt.Errorf("ASSET_PUBLIC_BASE_URL path %q must not contain ':' or '*'", u.Path)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty treats an explicitly empty variable as a value, so
// ASSET_CANONICAL_IMAGE_EXT= disables conversion.
func getEnvAllowEmpty(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}
