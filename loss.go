// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// FeatureFn maps an image, shaped [batch_size, height, width, 3] with values
// in [0.0, 1.0], to the activations of the requested layers, keyed by layer
// name. All activations must come from the same forward pass.
//
// vgg19.Model.FeaturesGraph implements it; tests and experiments can plug in
// anything else with the same shape contract.
type FeatureFn func(ctx *context.Context, image *Node, layerNames ...string) map[string]*Node

// meanAbsDiff is the L1 distance between a and b, averaged over all elements.
func meanAbsDiff(a, b *Node) *Node {
	return ReduceAllMean(Abs(Sub(a, b)))
}

// styleLossGraph compares each correlation matrix with its target by mean
// absolute difference, combines them with the per-layer weights, and scales
// the result by weight divided by the number of layers.
func styleLossGraph(grams, targets []*Node, layerWeights []float64, weight float64) *Node {
	var loss *Node
	for i, gram := range grams {
		term := MulScalar(meanAbsDiff(gram, targets[i]), layerWeights[i])
		if loss == nil {
			loss = term
		} else {
			loss = Add(loss, term)
		}
	}
	return MulScalar(loss, weight/float64(len(grams)))
}

// contentLossGraph compares each activation with its target by mean absolute
// difference and scales the average by weight.
func contentLossGraph(activations, targets []*Node, weight float64) *Node {
	var loss *Node
	for i, activation := range activations {
		term := meanAbsDiff(activation, targets[i])
		if loss == nil {
			loss = term
		} else {
			loss = Add(loss, term)
		}
	}
	return MulScalar(loss, weight/float64(len(activations)))
}

// TotalVariation sums the absolute differences between each pixel and its
// right and bottom neighbors, over all channels. It measures the
// high-frequency content of an image: minimizing it favors locally smooth
// images.
//
// image must be shaped [batch_size, height, width, channels].
func TotalVariation(image *Node) *Node {
	vertical := Sub(
		Slice(image, AxisRange(), AxisRangeToEnd(1)),
		Slice(image, AxisRange(), AxisRangeFromStart(-1)))
	horizontal := Sub(
		Slice(image, AxisRange(), AxisRange(), AxisRangeToEnd(1)),
		Slice(image, AxisRange(), AxisRange(), AxisRangeFromStart(-1)))
	return Add(ReduceAllSum(Abs(vertical)), ReduceAllSum(Abs(horizontal)))
}
