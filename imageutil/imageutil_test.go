package imageutil

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 200})
		}
	}
	return img
}

func TestPlan(t *testing.T) {
	base := t.TempDir()

	plan, err := Plan(base, "abc123", "png", "https://cdn.example/media")
	require.NoError(t, err)
	require.Len(t, plan, len(Variants))

	thumb := plan["thumbnail"]
	require.Equal(t, filepath.Join(base, "abc123", "thumbnail.png"), thumb.Path)
	require.Equal(t, "https://cdn.example/media/abc123/thumbnail.png", thumb.URL)
	require.Equal(t, 100, thumb.Width)
	require.Equal(t, 0, plan["original"].Width)

	info, err := os.Stat(filepath.Join(base, "abc123"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = Plan(base, "", "png", "")
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	paletted := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Transparent, color.White})
	_, ok := Normalize(paletted).(*image.NRGBA)
	require.True(t, ok, "palette images keep transparency")

	_, ok = Normalize(gradient(4, 4)).(*image.NRGBA)
	require.True(t, ok)

	ycc := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	rgba, ok := Normalize(ycc).(*image.RGBA)
	require.True(t, ok, "opaque sources become RGBA")
	require.Equal(t, uint8(255), rgba.RGBAAt(0, 0).A)

	gray := image.NewGray(image.Rect(2, 2, 6, 6))
	out := Normalize(gray)
	require.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
}

func TestResize(t *testing.T) {
	src := gradient(1000, 500)

	out := Resize(src, 100)
	require.Equal(t, 100, out.Bounds().Dx())
	require.Equal(t, 50, out.Bounds().Dy())

	require.Same(t, src, Resize(src, 0))
	require.Same(t, src, Resize(src, 1000))
	require.Same(t, src, Resize(src, 2000), "never upscales")
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, SavePNG(gradient(10, 10), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err, "file is PNG even with a .jpg name")

	require.Error(t, SavePNG(gradient(1, 1), filepath.Join(t.TempDir(), "missing", "x.png")))
}

func TestGenerate(t *testing.T) {
	plan, err := Plan(t.TempDir(), "file", "png", "/media")
	require.NoError(t, err)

	require.NoError(t, Generate(context.Background(), gradient(600, 300), plan))

	want := map[string]int{"original": 600, "thumbnail": 100, "small": 300, "medium": 500, "large": 600}
	for category, width := range want {
		img, err := imaging.Open(plan[category].Path)
		require.NoError(t, err, category)
		require.Equal(t, width, img.Bounds().Dx(), category)
		require.Equal(t, width/2, img.Bounds().Dy(), category)
	}
}

func TestGenerateErrors(t *testing.T) {
	require.ErrorIs(t, Generate(context.Background(), nil, nil), ErrNilImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan, err := Plan(t.TempDir(), "file", "png", "")
	require.NoError(t, err)
	require.ErrorIs(t, Generate(ctx, gradient(10, 10), plan), context.Canceled)
}
