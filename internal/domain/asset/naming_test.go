package asset

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freezeNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestNormalizeFilename(t *testing.T) {
	freezeNow(t, time.UnixMilli(1700000000123))

	tests := []struct {
		name      string
		original  string
		typ       Type
		canonical string
		pattern   string
	}{
		{"image gets canonical ext", "My Photo.JPG", TypeImage, ".jpg", `^my-photo-1700000000123-[0-9a-f]{8}\.jpg$`},
		{"image keeps ext without canonical", "Logo.PNG", TypeImage, "", `^logo-1700000000123-[0-9a-f]{8}\.png$`},
		{"non image keeps ext", "Price List (2024).XLSX", TypeBinary, ".jpg", `^price-list-2024-1700000000123-[0-9a-f]{8}\.xlsx$`},
		{"no extension", "README", TypeBinary, ".jpg", `^readme-1700000000123-[0-9a-f]{8}$`},
		{"directories are dropped", "../../etc/passwd.txt", TypeBinary, "", `^passwd-1700000000123-[0-9a-f]{8}\.txt$`},
		{"windows path", `C:\Users\me\Café Menu.pdf`, TypeBinary, "", `^caf-menu-1700000000123-[0-9a-f]{8}\.pdf$`},
		{"non latin falls back", "фото.jpeg", TypeImage, ".webp", `^asset-1700000000123-[0-9a-f]{8}\.webp$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeFilename(tt.original, tt.typ, tt.canonical)
			require.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(tt.pattern), got)
		})
	}
}

func TestNormalizeFilename_RejectsMissingBaseName(t *testing.T) {
	for _, in := range []string{"", "   ", "/", ".", ".jpg", "photos/.png"} {
		_, err := NormalizeFilename(in, TypeImage, ".jpg")
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", in)
	}
}

func TestNormalizeFilename_SameMillisecondDoesNotCollide(t *testing.T) {
	freezeNow(t, time.UnixMilli(1700000000000))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		got, err := NormalizeFilename("chair.jpg", TypeImage, ".jpg")
		require.NoError(t, err)
		assert.False(t, seen[got], "duplicate %s", got)
		seen[got] = true
	}
}

func TestSlugify_TruncatesLongNames(t *testing.T) {
	s := slugify("a very long product name that keeps going and going well past the limit")
	assert.LessOrEqual(t, len(s), maxSlugLength)
	assert.NotRegexp(t, `-$`, s)
}
