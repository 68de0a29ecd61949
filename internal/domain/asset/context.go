package asset

import (
	"encoding/hex"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// File is a buffered upload payload.
type File struct {
	Buffer   []byte
	Filename string
}

// ProcessingContext stages one upload between pipeline steps. It is owned by
// a single Service call and never shared.
type ProcessingContext struct {
	Buffer           []byte
	OriginalFilename string
	NormalizedName   string
	Type             Type
	Metadata         FileMetadata
	Checksum         string
}

func newProcessingContext(f *File, t Type) *ProcessingContext {
	return &ProcessingContext{
		Buffer:           f.Buffer,
		OriginalFilename: f.Filename,
		Type:             t,
	}
}

func (pc *ProcessingContext) withNormalizedName(name string) *ProcessingContext {
	pc.NormalizedName = name
	return pc
}

func (pc *ProcessingContext) withMetadata(m FileMetadata) *ProcessingContext {
	pc.Metadata = m
	return pc
}

// withBuffer replaces the bytes to store (after transcoding) and refreshes the checksum.
func (pc *ProcessingContext) withBuffer(buf []byte) *ProcessingContext {
	pc.Buffer = buf
	sum := blake2b.Sum256(buf)
	pc.Checksum = hex.EncodeToString(sum[:])
	return pc
}

// OriginalBaseName is the uploaded filename without directories or extension.
func (pc *ProcessingContext) OriginalBaseName() string {
	base := filepath.Base(strings.ReplaceAll(pc.OriginalFilename, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
