// Package thumbnail renders small/medium/large JPEG renditions of
// uploaded images. Generation is context-aware: an aborted item's
// in-flight decode finishes nowhere, the caller just drops the error.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
)

type Rendition struct {
	Name     string
	MaxWidth int
}

var Renditions = []Rendition{
	{Name: "small", MaxWidth: 150},
	{Name: "medium", MaxWidth: 400},
	{Name: "large", MaxWidth: 800},
}

// Result holds the encoded renditions keyed by rendition name plus the
// source dimensions.
type Result struct {
	Thumbs map[string][]byte
	Width  int
	Height int
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate decodes the image at path and produces each rendition,
// checking ctx between renditions so cancellation cuts the work short.
func (g *Generator) Generate(ctx context.Context, path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orig, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	result := &Result{
		Thumbs: make(map[string][]byte, len(Renditions)),
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	for _, r := range Renditions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		encoded, err := encodeRendition(orig, r.MaxWidth)
		if err != nil {
			return nil, fmt.Errorf("render %s thumbnail: %w", r.Name, err)
		}
		result.Thumbs[r.Name] = encoded
	}

	return result, nil
}

func encodeRendition(img image.Image, maxWidth int) ([]byte, error) {
	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	width := maxWidth
	if origWidth < maxWidth {
		width = origWidth // never upscale
	}
	height := (origHeight * width) / origWidth

	thumb := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
