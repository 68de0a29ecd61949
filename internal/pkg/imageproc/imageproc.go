// Package imageproc inspects uploaded images and renders resized variants.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"regexp"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedImage = errors.New("content is not a decodable image")
	ErrImageProcessing  = errors.New("image processing failed")
)

type Mode string

const (
	ModeCrop   Mode = "crop"
	ModeResize Mode = "resize"
)

var variantKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// SizeSpec describes one derived rendition. Height 0 means "auto": the
// height follows the source aspect ratio.
type SizeSpec struct {
	Key    string
	Width  int
	Height int
	Mode   Mode
}

func (s SizeSpec) Validate() error {
	if !variantKeyPattern.MatchString(s.Key) {
		return fmt.Errorf("key must match %s", variantKeyPattern.String())
	}
	if s.Width <= 0 {
		return fmt.Errorf("width must be > 0")
	}
	if s.Height < 0 {
		return fmt.Errorf("height must be >= 0")
	}
	if s.Mode != ModeCrop && s.Mode != ModeResize {
		return fmt.Errorf("mode must be crop or resize")
	}
	return nil
}

// Metadata is what Inspect learns about an image without keeping pixels around.
type Metadata struct {
	MimeType string
	Format   string
	Width    int
	Height   int
	ByteSize int64
}

var formatMimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

var imagingFormatNames = map[imaging.Format]string{
	imaging.JPEG: "jpeg",
	imaging.PNG:  "png",
	imaging.GIF:  "gif",
	imaging.BMP:  "bmp",
	imaging.TIFF: "tiff",
}

// SupportedOutputExt reports whether ext (".jpg", "png", ...) can be encoded.
func SupportedOutputExt(ext string) bool {
	_, err := imaging.FormatFromExtension(ext)
	return err == nil
}

type Inspector struct {
	canonical    imaging.Format
	hasCanonical bool
	jpegQuality  int
}

// NewInspector builds an inspector. An empty canonicalExt keeps every
// image in its input format.
func NewInspector(canonicalExt string, jpegQuality int) (*Inspector, error) {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	in := &Inspector{jpegQuality: jpegQuality}
	if canonicalExt != "" {
		f, err := imaging.FormatFromExtension(canonicalExt)
		if err != nil {
			return nil, fmt.Errorf("canonical image extension %q: %w", canonicalExt, err)
		}
		in.canonical = f
		in.hasCanonical = true
	}
	return in, nil
}

// CanonicalMimeType returns the MIME type of the canonical output format, or "" when unset.
func (in *Inspector) CanonicalMimeType() string {
	if !in.hasCanonical {
		return ""
	}
	return formatMimeTypes[imagingFormatNames[in.canonical]]
}

func (in *Inspector) Inspect(buf []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	mimeType, ok := formatMimeTypes[format]
	if !ok {
		mimeType = "image/" + format
	}
	return Metadata{
		MimeType: mimeType,
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		ByteSize: int64(len(buf)),
	}, nil
}

// Transcode re-encodes buf into the canonical format. A JPEG whose EXIF
// orientation is not 1 is re-encoded upright, so the stored primary and its
// recorded dimensions match the variants. Otherwise, when no canonical format
// is configured or buf is already in it, buf is returned as is.
func (in *Inspector) Transcode(buf []byte) ([]byte, Metadata, error) {
	meta, err := in.Inspect(buf)
	if err != nil {
		return nil, Metadata{}, err
	}
	rotated := meta.Format == "jpeg" && exifOrientation(buf) != 1
	if !rotated && (!in.hasCanonical || imagingFormatNames[in.canonical] == meta.Format) {
		return buf, meta, nil
	}

	src, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: decode: %v", ErrImageProcessing, err)
	}
	target := in.outputFormat(meta.Format)
	out, err := in.encode(src, target)
	if err != nil {
		return nil, Metadata{}, err
	}

	b := src.Bounds()
	name := imagingFormatNames[target]
	return out, Metadata{
		MimeType: formatMimeTypes[name],
		Format:   name,
		Width:    b.Dx(),
		Height:   b.Dy(),
		ByteSize: int64(len(out)),
	}, nil
}

// exifOrientation returns the EXIF orientation tag (1..8), or 1 when buf
// carries none.
func exifOrientation(buf []byte) int {
	x, err := exif.Decode(bytes.NewReader(buf))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// RenderVariant produces the rendition described by spec.
//
// crop fills exactly Width x Height, cutting the overflow around the center.
// resize fits inside the box keeping the aspect ratio and never upscales.
func (in *Inspector) RenderVariant(buf []byte, spec SizeSpec) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: variant %q: %v", ErrImageProcessing, spec.Key, err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	src, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImageProcessing, err)
	}

	var dst image.Image
	switch spec.Mode {
	case ModeCrop:
		if spec.Height == 0 {
			dst = imaging.Resize(src, spec.Width, 0, imaging.Lanczos)
		} else {
			dst = imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
		}
	case ModeResize:
		if spec.Height == 0 {
			if src.Bounds().Dx() <= spec.Width {
				dst = src
			} else {
				dst = imaging.Resize(src, spec.Width, 0, imaging.Lanczos)
			}
		} else {
			dst = imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
		}
	}

	return in.encode(dst, in.outputFormat(format))
}

func (in *Inspector) outputFormat(inputFormat string) imaging.Format {
	if in.hasCanonical {
		return in.canonical
	}
	if f, err := imaging.FormatFromExtension(inputFormat); err == nil {
		return f
	}
	// webp has no pure-Go encoder
	return imaging.PNG
}

func (in *Inspector) encode(img image.Image, format imaging.Format) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, format, imaging.JPEGQuality(in.jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImageProcessing, err)
	}
	return out.Bytes(), nil
}
