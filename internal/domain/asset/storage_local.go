package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
)

// LocalStorage keeps assets as flat files under baseDir:
// "<baseDir>/<name>" plus "<baseDir>/<stem>-<variant><ext>" for renditions.
type LocalStorage struct {
	baseDir  string
	variants []imageproc.SizeSpec
	renderer VariantRenderer
	log      *logger.Log
}

func NewLocalStorage(baseDir string, variants []imageproc.SizeSpec, renderer VariantRenderer, log *logger.Log) (*LocalStorage, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("local storage base directory is empty")
	}
	if log == nil {
		log = logger.Get()
	}
	return &LocalStorage{
		baseDir:  filepath.Clean(baseDir),
		variants: variants,
		renderer: renderer,
		log:      log.WithEntryName("LocalStorage"),
	}, nil
}

func (s *LocalStorage) Mode() string { return "local" }

func (s *LocalStorage) BaseDir() string { return s.baseDir }

func (s *LocalStorage) Save(ctx context.Context, a *Asset, buf []byte) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.put(ctx, a.Name, buf); err != nil {
		return fmt.Errorf("write primary file: %w", err)
	}
	a.Source = s.locate(a.Name)
	s.log.WithField("name", a.Name).WithField("size", len(buf)).Debug("stored asset")
	return nil
}

func (s *LocalStorage) SaveWithVariants(ctx context.Context, a *Asset, buf []byte) error {
	if !a.IsImage() {
		return fmt.Errorf("%w: variants require an IMAGE asset, got %s", ErrUnsupportedContent, a.Type)
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	return saveWithVariants(ctx, s, s.renderer, s.variants, a, buf, s.log)
}

func (s *LocalStorage) Delete(ctx context.Context, a *Asset) error {
	return deleteStored(ctx, s, s.variants, a, s.log)
}

// DeleteAll empties baseDir but keeps the directory itself.
func (s *LocalStorage) DeleteAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list storage directory: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(s.baseDir, e.Name())); err != nil {
			return fmt.Errorf("delete %s: %w", e.Name(), err)
		}
	}
	s.log.WithField("count", len(entries)).Info("storage directory emptied")
	return nil
}

func (s *LocalStorage) Read(ctx context.Context, a *Asset) ([]byte, error) {
	if err := validateStoredName(a.Name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.locate(a.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStorageObjectNotFound, a.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.Name, err)
	}
	return data, nil
}

// ensureDir creates baseDir when missing. An existing directory is fine.
func (s *LocalStorage) ensureDir() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}

// put writes through a temp file and renames it into place so a reader never sees a half-written file.
func (s *LocalStorage) put(ctx context.Context, name string, data []byte) error {
	if err := validateStoredName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.locate(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move %s into place: %w", name, err)
	}
	return nil
}

func (s *LocalStorage) remove(_ context.Context, name string) error {
	if err := validateStoredName(name); err != nil {
		return err
	}
	err := os.Remove(s.locate(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrStorageObjectNotFound, name)
	}
	return err
}

func (s *LocalStorage) locate(name string) string {
	return filepath.Join(s.baseDir, name)
}

func validateStoredName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: illegal storage name %q", ErrInvalidInput, name)
	}
	return nil
}
