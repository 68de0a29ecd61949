package asset

import (
	"context"
	"errors"
	"fmt"

	"commerce/internal/config"
	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
)

// Storage decides where asset bytes live. Implementations set Asset.Source
// only after the primary file has been written.
type Storage interface {
	Mode() string
	// Save writes the primary file.
	Save(ctx context.Context, a *Asset, buf []byte) error
	// SaveWithVariants writes the primary file plus one rendition per
	// configured SizeSpec. If any write fails, every file created by this
	// call is removed before the error is returned.
	SaveWithVariants(ctx context.Context, a *Asset, buf []byte) error
	// Delete removes the primary file and all renditions. Missing files
	// are skipped; any other error stops the deletion.
	Delete(ctx context.Context, a *Asset) error
	DeleteAll(ctx context.Context) error
	Read(ctx context.Context, a *Asset) ([]byte, error)
}

// VariantRenderer renders one rendition of an image buffer.
type VariantRenderer interface {
	RenderVariant(buf []byte, spec imageproc.SizeSpec) ([]byte, error)
}

// NewStorage picks the implementation named by cfg.StorageDriver.
func NewStorage(cfg *config.AssetConfig, renderer VariantRenderer, log *logger.Log) (Storage, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return NewLocalStorage(cfg.StoragePath, cfg.Variants, renderer, log)
	case "oss":
		return NewOSSStorage(cfg.OSS, cfg.Variants, renderer, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// blobStore is the per-backend primitive set the shared save/delete logic runs on.
type blobStore interface {
	put(ctx context.Context, name string, data []byte) error
	// remove returns an error wrapping ErrStorageObjectNotFound when name does not exist.
	remove(ctx context.Context, name string) error
	locate(name string) string
}

func saveWithVariants(ctx context.Context, store blobStore, renderer VariantRenderer, variants []imageproc.SizeSpec, a *Asset, buf []byte, log *logger.Log) error {
	if !a.IsImage() {
		return fmt.Errorf("%w: variants require an IMAGE asset, got %s", ErrUnsupportedContent, a.Type)
	}

	created := make([]string, 0, len(variants)+1)
	if err := store.put(ctx, a.Name, buf); err != nil {
		return fmt.Errorf("write primary file: %w", err)
	}
	created = append(created, a.Name)

	for _, spec := range variants {
		name := a.VariantName(spec.Key)
		data, err := renderer.RenderVariant(buf, spec)
		if err == nil {
			err = store.put(ctx, name, data)
		}
		if err != nil {
			rollbackCreated(ctx, store, created, log)
			return fmt.Errorf("write variant %q: %w", spec.Key, err)
		}
		created = append(created, name)
	}

	a.Source = store.locate(a.Name)
	log.WithField("name", a.Name).WithField("variants", len(variants)).Debug("stored asset with variants")
	return nil
}

// rollbackCreated removes files written earlier in the same call. Failures
// are logged; the caller's original error is what gets returned.
func rollbackCreated(ctx context.Context, store blobStore, names []string, log *logger.Log) {
	for _, name := range names {
		if err := store.remove(ctx, name); err != nil && !errors.Is(err, ErrStorageObjectNotFound) {
			log.WithErr(err).WithField("name", name).Warn("rollback of partially written file failed")
		}
	}
}

func deleteStored(ctx context.Context, store blobStore, variants []imageproc.SizeSpec, a *Asset, log *logger.Log) error {
	names := []string{a.Name}
	if a.IsImage() {
		for _, spec := range variants {
			names = append(names, a.VariantName(spec.Key))
		}
	}
	for _, name := range names {
		err := store.remove(ctx, name)
		if errors.Is(err, ErrStorageObjectNotFound) {
			log.WithField("name", name).Info("stored file already missing, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}
