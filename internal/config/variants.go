package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"commerce/internal/pkg/imageproc"
)

// variantsFile is the on-disk shape of ASSET_VARIANTS_FILE:
//
//	variants:
//	  - key: thumb
//	    width: 100
//	    height: 100
//	    mode: crop
//	  - key: large
//	    width: 800
//	    height: auto
//	    mode: resize
type variantsFile struct {
	Variants []variantEntry `yaml:"variants"`
}

type variantEntry struct {
	Key    string        `yaml:"key"`
	Width  int           `yaml:"width"`
	Height variantHeight `yaml:"height"`
	Mode   string        `yaml:"mode"`
}

// variantHeight accepts either an integer or the literal "auto" (stored as 0).
type variantHeight int

func (h *variantHeight) UnmarshalYAML(node *yaml.Node) error {
	value := strings.ToLower(strings.TrimSpace(node.Value))
	if value == "" || value == "auto" {
		*h = 0
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("height must be an integer or \"auto\", got %q", node.Value)
	}
	*h = variantHeight(n)
	return nil
}

func LoadVariants(path string) ([]imageproc.SizeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file: %w", err)
	}
	return ParseVariants(data)
}

func ParseVariants(data []byte) ([]imageproc.SizeSpec, error) {
	var file variantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse variants file: %w", err)
	}

	specs := make([]imageproc.SizeSpec, 0, len(file.Variants))
	for _, v := range file.Variants {
		mode := imageproc.Mode(strings.ToLower(strings.TrimSpace(v.Mode)))
		if mode == "" {
			mode = imageproc.ModeResize
		}
		specs = append(specs, imageproc.SizeSpec{
			Key:    strings.TrimSpace(v.Key),
			Width:  v.Width,
			Height: int(v.Height),
			Mode:   mode,
		})
	}
	return specs, nil
}

func DefaultVariants() []imageproc.SizeSpec {
	return []imageproc.SizeSpec{
		{Key: "thumb", Width: 100, Height: 100, Mode: imageproc.ModeCrop},
		{Key: "small", Width: 300, Mode: imageproc.ModeResize},
		{Key: "medium", Width: 600, Mode: imageproc.ModeResize},
		{Key: "large", Width: 800, Mode: imageproc.ModeResize},
	}
}
