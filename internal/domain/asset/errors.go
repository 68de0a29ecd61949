package asset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNoFileUploaded        = errors.New("no file uploaded")
	ErrUnsupportedContent    = errors.New("operation not supported for this content type")
	ErrNotFound              = errors.New("asset not found")
	ErrInvalidPagination     = errors.New("take and skip must be numeric")
	ErrInvalidTransition     = errors.New("invalid lifecycle transition")
	ErrNameCollision         = errors.New("an asset with this storage name already exists")
	ErrStorageObjectNotFound = errors.New("stored file not found")
	ErrNoChannel             = errors.New("asset must belong to at least one channel")
)

// ValidationError lists every field that broke an Asset rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "asset validation failed: " + strings.Join(parts, "; ")
}

// FileTooLargeError carries the configured ceiling so it can be shown to the user.
type FileTooLargeError struct {
	MaxMB int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file exceeds maximum allowed size of %d MB", e.MaxMB)
}

// BulkDeleteError reports the ids that could not be deleted by an
// independent bulk delete. The other ids were deleted.
type BulkDeleteError struct {
	Failures map[string]error
}

func (e *BulkDeleteError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("asset %s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("%d of the requested assets were not deleted: %s", len(ids), strings.Join(parts, "; "))
}

func (e *BulkDeleteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// FileCleanupError is returned by an atomic bulk delete whose records were
// all deleted but some stored files could not be removed. The files are
// orphaned; no record points at them.
type FileCleanupError struct {
	Failures map[string]error
}

func (e *FileCleanupError) IDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *FileCleanupError) Error() string {
	ids := e.IDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("asset %s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("files of %d deleted assets were left in storage: %s", len(ids), strings.Join(parts, "; "))
}

func (e *FileCleanupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
