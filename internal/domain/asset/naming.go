package asset

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxSlugLength = 40

var now = time.Now

// NormalizeFilename turns an uploaded filename into the URL-safe storage
// name "<slug>-<unix millis>-<8 hex><ext>". Images get canonicalExt when one
// is configured; everything else keeps its own extension.
func NormalizeFilename(original string, t Type, canonicalExt string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(original, `\`, "/"))
	if name == "" {
		return "", fmt.Errorf("%w: filename is empty", ErrInvalidInput)
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return "", fmt.Errorf("%w: filename %q has no base name", ErrInvalidInput, original)
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSpace(strings.TrimSuffix(base, ext))
	if stem == "" {
		return "", fmt.Errorf("%w: filename %q has no base name", ErrInvalidInput, original)
	}

	slug := slugify(stem)
	if slug == "" {
		slug = "asset"
	}

	finalExt := sanitizeExt(ext)
	if t == TypeImage && canonicalExt != "" {
		finalExt = sanitizeExt(canonicalExt)
	}

	suffix := strconv.FormatInt(now().UnixMilli(), 10) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToLower(slug + "-" + suffix + finalExt), nil
}

// slugify lowercases s and collapses every run of non [a-z0-9] characters into one "-".
func slugify(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, ext)
	if clean == "" {
		return ""
	}
	return "." + clean
}
