// Package imageutil produces resized PNG variants of uploaded images.
package imageutil

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// VariantSpec names a size category. Width 0 keeps the source width.
type VariantSpec struct {
	Category string
	Width    int
}

// Variants lists the generated sizes, smallest last.
var Variants = []VariantSpec{
	{Category: "original", Width: 0},
	{Category: "thumbnail", Width: 100},
	{Category: "small", Width: 300},
	{Category: "medium", Width: 500},
	{Category: "large", Width: 700},
}

// Variant is where one size is written and served from.
type Variant struct {
	Path  string
	URL   string
	Width int
}

var ErrNilImage = errors.New("imageutil: nil image")

// Plan creates baseDir/fileID and returns the file path and public URL of
// every variant, keyed by category.
func Plan(baseDir, fileID, ext, baseURL string) (map[string]Variant, error) {
	if fileID == "" {
		return nil, errors.New("imageutil: file id is required")
	}
	dir := filepath.Join(baseDir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imageutil: create %s: %w", dir, err)
	}
	plan := make(map[string]Variant, len(Variants))
	for _, spec := range Variants {
		name := spec.Category + "." + ext
		plan[spec.Category] = Variant{
			Path:  filepath.Join(dir, name),
			URL:   baseURL + "/" + fileID + "/" + name,
			Width: spec.Width,
		}
	}
	return plan, nil
}

// Normalize returns an NRGBA copy when img can carry transparency (alpha
// or palette models) and an opaque RGBA copy otherwise.
func Normalize(img image.Image) image.Image {
	if hasAlpha(img) {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func hasAlpha(img image.Image) bool {
	switch img.ColorModel() {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	_, paletted := img.ColorModel().(color.Palette)
	return paletted
}

// Resize scales img to width keeping the aspect ratio. It never upscales;
// width <= 0 returns img unchanged.
func Resize(img image.Image, width int) image.Image {
	if width <= 0 || width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// SavePNG writes img to path as PNG regardless of the extension.
func SavePNG(img image.Image, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageutil: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("imageutil: close %s: %w", path, cerr)
		}
	}()
	if err := imaging.Encode(f, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return fmt.Errorf("imageutil: encode %s: %w", path, err)
	}
	return nil
}

// Generate writes every planned variant of img concurrently. The first
// failure cancels the remaining writes.
func Generate(ctx context.Context, img image.Image, plan map[string]Variant) error {
	if img == nil {
		return ErrNilImage
	}
	src := Normalize(img)

	g, ctx := errgroup.WithContext(ctx)
	for category, v := range plan {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := SavePNG(Resize(src, v.Width), v.Path); err != nil {
				return fmt.Errorf("%s: %w", category, err)
			}
			return nil
		})
	}
	return g.Wait()
}
