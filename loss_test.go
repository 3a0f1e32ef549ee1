// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

func TestStyleLossWeighting(t *testing.T) {
	backend := testBackend(t)
	// Three layers with mean absolute differences 2, 4 and 1, per-layer
	// weights 0.1, 0.5 and 1.0, and overall weight 0.01:
	// 0.01/3 * (0.1*2 + 0.5*4 + 1.0*1) = 0.01/3 * 3.2.
	got, err := ExecOnce(backend, func(g *Graph) *Node {
		grams := []*Node{
			Const(g, [][]float32{{2}}),
			Const(g, [][]float32{{4}}),
			Const(g, [][]float32{{1}}),
		}
		targets := []*Node{
			Const(g, [][]float32{{0}}),
			Const(g, [][]float32{{0}}),
			Const(g, [][]float32{{0}}),
		}
		return styleLossGraph(grams, targets, []float64{0.1, 0.5, 1.0}, 0.01)
	})
	require.NoError(t, err)
	require.InDelta(t, 0.01/3.0*3.2, tensors.ToScalar[float32](got), 1e-6)
}

func TestStyleLossZeroWeight(t *testing.T) {
	backend := testBackend(t)
	got, err := ExecOnce(backend, func(g *Graph) *Node {
		grams := []*Node{Const(g, [][]float32{{7, -3}, {2, 11}})}
		targets := []*Node{Const(g, [][]float32{{0, 0}, {0, 0}})}
		return styleLossGraph(grams, targets, []float64{1}, 0)
	})
	require.NoError(t, err)
	require.Equal(t, float32(0), tensors.ToScalar[float32](got))
}

func TestContentLoss(t *testing.T) {
	backend := testBackend(t)
	// One layer with mean absolute difference 0.5 and weight 100 gives 50.
	got, err := ExecOnce(backend, func(g *Graph) *Node {
		activations := []*Node{Const(g, []float32{1, 2, 3, 4})}
		targets := []*Node{Const(g, []float32{1.5, 1.5, 3.5, 3.5})}
		return contentLossGraph(activations, targets, 100)
	})
	require.NoError(t, err)
	require.InDelta(t, 50.0, tensors.ToScalar[float32](got), 1e-4)
}

func TestTotalVariation(t *testing.T) {
	backend := testBackend(t)
	// 2x2 single-channel image: vertical diffs |1-0| + |0.25-0.5| = 1.25,
	// horizontal diffs |0.5-0| + |0.25-1| = 1.25.
	image := [][][][]float32{{
		{{0}, {0.5}},
		{{1}, {0.25}},
	}}
	got, err := ExecOnce(backend, TotalVariation, image)
	require.NoError(t, err)
	require.InDelta(t, 2.5, tensors.ToScalar[float32](got), 1e-5)

	// A constant image has no variation.
	flat := [][][][]float32{{
		{{0.7, 0.7, 0.7}, {0.7, 0.7, 0.7}},
		{{0.7, 0.7, 0.7}, {0.7, 0.7, 0.7}},
	}}
	got, err = ExecOnce(backend, TotalVariation, flat)
	require.NoError(t, err)
	require.InDelta(t, 0.0, tensors.ToScalar[float32](got), 1e-6)
}
