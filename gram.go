// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// ShiftedGram computes the channel-to-channel correlation matrix of a
// convolutional activation x, shaped [1, height, width, channels], correlating
// each channel with every channel of a copy of x shifted by offset cells along
// both spatial axes:
//
//	G[c, d] = mean over valid (i, j) of x[i+offset, j+offset, c] * x[i, j, d]
//
// The mean is over the (height-offset)*(width-offset) positions where both
// terms are defined, so the statistic is comparable across activation sizes.
// The result is shaped [channels, channels] and, unlike the classic gram
// matrix, is not symmetric: G[c, d] correlates a shifted c with an unshifted
// d, while G[d, c] does the opposite.
//
// offset must be >= 1 and smaller than both spatial dimensions.
func ShiftedGram(x *Node, offset int) *Node {
	if x.Rank() != 4 {
		exceptions.Panicf("ShiftedGram requires an activation shaped [batch_size, height, width, channels], got %s",
			x.Shape())
	}
	if offset < 1 {
		exceptions.Panicf("ShiftedGram offset must be >= 1, got %d", offset)
	}
	dims := x.Shape().Dimensions
	height, width := dims[1], dims[2]
	if offset >= height || offset >= width {
		exceptions.Panicf("ShiftedGram offset %d leaves no valid positions on a %dx%d activation",
			offset, height, width)
	}
	shifted := Slice(x, AxisRange(), AxisRangeToEnd(offset), AxisRangeToEnd(offset), AxisRange())
	base := Slice(x, AxisRange(), AxisRangeFromStart(height-offset), AxisRangeFromStart(width-offset), AxisRange())
	gram := Einsum("bijc,bijd->bcd", shifted, base)
	gram = Squeeze(gram, 0)
	numPositions := float64((height - offset) * (width - offset))
	return MulScalar(gram, 1.0/numPositions)
}
