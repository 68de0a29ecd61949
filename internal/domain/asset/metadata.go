package asset

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultMimeType = "application/octet-stream"

// FileMetadata is what the pipeline knows about the bytes it is about to store.
type FileMetadata struct {
	MimeType string
	FileSize int64
	Width    int
	Height   int
}

var extMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".json": "application/json",
	".xml":  "application/xml",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".html": "text/html",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ExtractMetadata derives MIME type (from the filename extension) and size for non-image content.
func ExtractMetadata(buf []byte, filename string) FileMetadata {
	mimeType, ok := extMimeTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		mimeType = defaultMimeType
	}
	return FileMetadata{
		MimeType: mimeType,
		FileSize: int64(len(buf)),
	}
}

// raster formats the image inspector can decode
var decodableImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// Classify sniffs the content to pick the pipeline branch. Only raster
// formats that can be decoded count as IMAGE; svg and friends are BINARY.
func Classify(buf []byte) Type {
	detected := mimetype.Detect(buf)
	for _, m := range decodableImageTypes {
		if detected.Is(m) {
			return TypeImage
		}
	}
	switch {
	case strings.HasPrefix(detected.String(), "video/"):
		return TypeVideo
	case strings.HasPrefix(detected.String(), "audio/"):
		return TypeAudio
	default:
		return TypeBinary
	}
}
