// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func TestResizeToMax(t *testing.T) {
	// Upscaling: 400x300, longer dimension to 512, gives 512x384.
	img := ResizeToMax(imaging.New(400, 300, color.NRGBA{}), 512)
	require.Equal(t, 512, img.Bounds().Dx())
	require.Equal(t, 384, img.Bounds().Dy())

	// Downscaling, with height as the longer dimension.
	img = ResizeToMax(imaging.New(300, 1024, color.NRGBA{}), 512)
	require.Equal(t, 150, img.Bounds().Dx())
	require.Equal(t, 512, img.Bounds().Dy())

	// Already at target size.
	img = ResizeToMax(imaging.New(512, 64, color.NRGBA{}), 512)
	require.Equal(t, 512, img.Bounds().Dx())
	require.Equal(t, 64, img.Bounds().Dy())
}

func TestLoadImage(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "test.png")
	require.NoError(t, imaging.Save(imaging.New(8, 4, color.NRGBA{R: 255, A: 255}), imgPath))

	loaded, err := LoadImage(imgPath, 8, false)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 8, 3}, loaded.Shape().Dimensions)
	pixel := loaded.Value().([][][][]float32)[0][2][5]
	require.InDelta(t, 1.0, pixel[0], 1e-2)
	require.InDelta(t, 0.0, pixel[1], 1e-2)
	require.InDelta(t, 0.0, pixel[2], 1e-2)

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"), 8, false)
	require.Error(t, err)
}

func TestLoadImageGrey(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "test.png")
	require.NoError(t, imaging.Save(imaging.New(6, 6, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), imgPath))

	loaded, err := LoadImage(imgPath, 6, true)
	require.NoError(t, err)
	pixel := loaded.Value().([][][][]float32)[0][3][3]
	// Greyscale replicated over the 3 channels.
	require.InDelta(t, pixel[0], pixel[1], 1e-3)
	require.InDelta(t, pixel[1], pixel[2], 1e-3)
	require.Greater(t, pixel[0], float32(0))
	require.Less(t, pixel[0], float32(1))
}

func TestSaveImageRoundTrip(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "source.png")
	require.NoError(t, imaging.Save(imaging.New(8, 8, color.NRGBA{R: 30, G: 160, B: 240, A: 255}), imgPath))
	loaded, err := LoadImage(imgPath, 8, false)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, SaveImage(loaded, outPath))

	reloaded, err := LoadImage(outPath, 8, false)
	require.NoError(t, err)
	got := reloaded.Value().([][][][]float32)[0][4][4]
	require.InDelta(t, 30.0/255.0, got[0], 0.05) // JPEG is lossy.
	require.InDelta(t, 160.0/255.0, got[1], 0.05)
	require.InDelta(t, 240.0/255.0, got[2], 0.05)
}
