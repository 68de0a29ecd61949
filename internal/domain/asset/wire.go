package asset

import (
	"fmt"

	"gorm.io/gorm"

	"commerce/internal/config"
	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
)

// NewFromConfig builds the service with the repository, storage driver and
// image inspector selected by cfg.
func NewFromConfig(db *gorm.DB, cfg *config.AssetConfig, log *logger.Log) (*Service, Storage, error) {
	inspector, err := imageproc.NewInspector(cfg.CanonicalImageExt, cfg.JPEGQuality)
	if err != nil {
		return nil, nil, err
	}
	storage, err := NewStorage(cfg, inspector, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init asset storage: %w", err)
	}
	svc := NewService(db, NewRepository(db), storage, inspector, OptionsFromConfig(cfg), log)
	return svc, storage, nil
}
