// Package visual implements pixel-level image comparison for regression
// tests, plus diagnostic diff rendering.
package visual

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"

	"github.com/skyhookqa/skyhook/internal/metrics"
)

// markerColor highlights differing pixels in the rendered diff.
var markerColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

const thumbnailWidth = 320

// Result reports one baseline/current comparison.
type Result struct {
	Matches        bool    `json:"matches"`
	DiffPercentage float64 `json:"diff_percentage"`
	IsNewBaseline  bool    `json:"is_new_baseline"`
	SizeMismatch   bool    `json:"size_mismatch"`
	DiffPath       string  `json:"diff_path,omitempty"`
}

// Differ compares screenshots against stored baselines.
type Differ struct {
	threshold float64
}

// NewDiffer builds a Differ; threshold is the tolerated fraction of differing
// pixels, defaulting to 0.1.
func NewDiffer(threshold float64) *Differ {
	if threshold <= 0 {
		threshold = 0.1
	}
	return &Differ{threshold: threshold}
}

// Compare checks current against the baseline file. A missing baseline
// auto-accepts as the new baseline. A dimension mismatch fails outright
// without a pixel pass. Otherwise pixels are compared exactly and the match
// decision applies the threshold. When diffPath is non-empty a diagnostic
// image is written: differing pixels in the marker color, matching pixels as
// a dimmed ghost of the baseline.
func (d *Differ) Compare(baselinePath, currentPath, diffPath string) (Result, error) {
	baseline, err := loadPNG(baselinePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Matches: true, IsNewBaseline: true}, nil
		}
		return Result{}, fmt.Errorf("load baseline: %w", err)
	}
	current, err := loadPNG(currentPath)
	if err != nil {
		return Result{}, fmt.Errorf("load current: %w", err)
	}

	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return Result{Matches: false, DiffPercentage: 1.0, SizeMismatch: true}, nil
	}

	var diffImg *image.RGBA
	if diffPath != "" {
		diffImg = image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	}

	differing := 0
	total := bb.Dx() * bb.Dy()
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			bp := baseline.At(bb.Min.X+x, bb.Min.Y+y)
			cp := current.At(cb.Min.X+x, cb.Min.Y+y)
			if !sameRGB(bp, cp) {
				differing++
				if diffImg != nil {
					diffImg.Set(x, y, markerColor)
				}
			} else if diffImg != nil {
				diffImg.Set(x, y, ghost(bp))
			}
		}
	}

	pct := 0.0
	if total > 0 {
		pct = float64(differing) / float64(total)
	}
	metrics.VisualDiffObserved(pct)

	result := Result{
		Matches:        pct <= d.threshold,
		DiffPercentage: pct,
	}
	if diffImg != nil {
		if err := savePNG(diffPath, diffImg); err != nil {
			return Result{}, fmt.Errorf("write diff image: %w", err)
		}
		result.DiffPath = diffPath
	}
	return result, nil
}

// Thumbnail downsizes a PNG screenshot for report previews, preserving
// aspect ratio.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	small := resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := png.Encode(&buf, small); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func sameRGB(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	return ar == br && ag == bg && ab == bb
}

// ghost renders a matching baseline pixel at reduced luminance.
func ghost(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.RGBA{
		R: uint8(r / 3 >> 8),
		G: uint8(g / 3 >> 8),
		B: uint8(b / 3 >> 8),
		A: 255,
	}
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func savePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
