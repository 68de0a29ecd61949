package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce/internal/pkg/imageproc"
)

func TestParseVariants(t *testing.T) {
	data := []byte(`
variants:
  - key: thumb
    width: 100
    height: 100
    mode: crop
  - key: large
    width: 800
    height: auto
  - key: wide
    width: 1200
    height: 400
    mode: RESIZE
`)
	specs, err := ParseVariants(data)
	require.NoError(t, err)
	assert.Equal(t, []imageproc.SizeSpec{
		{Key: "thumb", Width: 100, Height: 100, Mode: imageproc.ModeCrop},
		{Key: "large", Width: 800, Height: 0, Mode: imageproc.ModeResize},
		{Key: "wide", Width: 1200, Height: 400, Mode: imageproc.ModeResize},
	}, specs)
}

func TestParseVariants_BadHeight(t *testing.T) {
	_, err := ParseVariants([]byte("variants:\n  - key: x\n    width: 10\n    height: tall\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto")
}

func TestLoadAssetConfig_Defaults(t *testing.T) {
	cfg, err := LoadAssetConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxFileSizeMB)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes())
	assert.Equal(t, ".jpg", cfg.CanonicalImageExt)
	assert.True(t, cfg.VariantsEnabled)
	assert.Equal(t, DefaultVariants(), cfg.Variants)
	assert.Equal(t, "local", cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.TxTimeout)
	assert.False(t, cfg.AtomicBulkDelete)
	assert.Equal(t, "@daily", cfg.PurgeSchedule)
}

func TestLoadAssetConfig_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variants:\n  - key: icon\n    width: 32\n    height: 32\n    mode: crop\n"), 0o644))

	t.Setenv("ASSET_MAX_FILE_SIZE_MB", "25")
	t.Setenv("ASSET_CANONICAL_IMAGE_EXT", "PNG")
	t.Setenv("ASSET_VARIANTS_FILE", path)
	t.Setenv("ASSET_ATOMIC_BULK_DELETE", "yes")
	t.Setenv("ASSET_PUBLIC_BASE_URL", "https://cdn.example.com/assets/")

	cfg, err := LoadAssetConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxFileSizeMB)
	assert.Equal(t, ".png", cfg.CanonicalImageExt)
	assert.True(t, cfg.AtomicBulkDelete)
	assert.Equal(t, "https://cdn.example.com/assets", cfg.PublicBaseURL)
	require.Len(t, cfg.Variants, 1)
	assert.Equal(t, "icon", cfg.Variants[0].Key)
}

func TestLoadAssetConfig_EmptyCanonicalExtDisablesConversion(t *testing.T) {
	t.Setenv("ASSET_CANONICAL_IMAGE_EXT", "")
	cfg, err := LoadAssetConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.CanonicalImageExt)
}

func TestLoadAssetConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero size", map[string]string{"ASSET_MAX_FILE_SIZE_MB": "0"}},
		{"non numeric size", map[string]string{"ASSET_MAX_FILE_SIZE_MB": "ten"}},
		{"unknown driver", map[string]string{"ASSET_STORAGE_DRIVER": "ftp"}},
		{"oss without bucket", map[string]string{"ASSET_STORAGE_DRIVER": "oss"}},
		{"webp output", map[string]string{"ASSET_CANONICAL_IMAGE_EXT": ".webp"}},
		{"bad timeout", map[string]string{"ASSET_TX_TIMEOUT": "soon"}},
		{"jpeg quality", map[string]string{"ASSET_JPEG_QUALITY": "101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadAssetConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadAssetConfig_DuplicateVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variants:\n  - key: a\n    width: 10\n  - key: a\n    width: 20\n"), 0o644))
	t.Setenv("ASSET_VARIANTS_FILE", path)

	_, err := LoadAssetConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProdRejectsDefaultSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("APP_ENV", "")
	t.Setenv("ENV", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.NotNil(t, cfg.Asset)
}

func TestLoadAssetConfig_PublicBaseURL(t *testing.T) {
	tests := []struct {
		value string
		mount string
		ok    bool
	}{
		{"/static/assets", "/static/assets", true},
		{"https://cdn.example.com/assets/", "/assets", true},
		{"http://localhost:8080/static/assets", "/static/assets", true},
		{"https://cdn.example.com", "", true},
		{"cdn.example.com/assets", "", false},
		{"ftp://cdn.example.com/assets", "", false},
		{"//cdn.example.com/assets", "", false},
		{"/static/:id", "", false},
		{"/static/*files", "", false},
		{"https://cdn.example.com/assets?v=1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("ASSET_PUBLIC_BASE_URL", tt.value)
			cfg, err := LoadAssetConfig()
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mount, cfg.StaticMountPath())
		})
	}
}
