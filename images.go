// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// LoadImage reads an image file and converts it to a tensor shaped
// [1, height, width, 3] with float32 values in [0.0, 1.0]. The image is
// resized, preserving aspect ratio, so its longer dimension is maxDim pixels.
// If grey is set, the image is converted to greyscale first, the grey value
// replicated over the 3 channels.
func LoadImage(filePath string, maxDim int, grey bool) (*tensors.Tensor, error) {
	img, err := imaging.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image from %q", filePath)
	}
	img = ResizeToMax(img, maxDim)
	if grey {
		img = imaging.Grayscale(img)
	}
	return images.ToTensor(dtypes.Float32).MaxValue(1.0).Batch([]image.Image{img}), nil
}

// ResizeToMax resizes img, preserving aspect ratio, so that its longer
// dimension becomes maxDim pixels. Lanczos resampling is used in both
// directions, up- or down-scaling.
func ResizeToMax(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scale := float64(maxDim) / float64(max(width, height))
	return imaging.Resize(img, int(float64(width)*scale), int(float64(height)*scale), imaging.Lanczos)
}

// SaveImage writes a tensor shaped [1, height, width, 3] (or [height, width,
// 3]), with values in [0.0, 1.0], as an image file. The format is taken from
// the file extension.
func SaveImage(t *tensors.Tensor, filePath string) error {
	img := images.ToImage().MaxValue(1.0).Single(t)
	if err := imaging.Save(img, filePath); err != nil {
		return errors.Wrapf(err, "failed to save image to %q", filePath)
	}
	return nil
}
