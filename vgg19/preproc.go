// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package vgg19

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// channelMeans are the ImageNet per-channel means subtracted during
// preprocessing, in BGR order, matching the Caffe convention the pretrained
// weights were trained with.
var channelMeans = []float32{103.939, 116.779, 123.68}

// PreprocessGraph converts an image with RGB values in the range [0.0, 1.0]
// to the representation the pretrained weights expect: values scaled to
// [0, 255], channels flipped to BGR order and the ImageNet channel means
// subtracted.
//
// image must be shaped [batch_size, height, width, 3] (channels last).
func PreprocessGraph(image *Node) *Node {
	g := image.Graph()
	x := MulScalar(image, 255.0)
	x = Reverse(x, -1) // RGB -> BGR.
	means := Const(g, [][][][]float32{{{channelMeans}}}) // Shaped [1, 1, 1, 3] for broadcasting.
	return Sub(x, means)
}
