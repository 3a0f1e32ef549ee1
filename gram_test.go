// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T) backends.Backend {
	t.Helper()
	backend, err := simplego.New("")
	require.NoError(t, err)
	return backend
}

func TestShiftedGram(t *testing.T) {
	backend := testBackend(t)
	gramFn := func(offset int) func(x *Node) *Node {
		return func(x *Node) *Node { return ShiftedGram(x, offset) }
	}

	// Single channel, 3x3 activation with values 1..9: with offset 1, the
	// shifted crop is {5, 6, 8, 9} and the base crop {1, 2, 4, 5}, so
	// G[0, 0] = (5*1 + 6*2 + 8*4 + 9*5) / 4 = 23.5.
	x := [][][][]float32{{
		{{1}, {2}, {3}},
		{{4}, {5}, {6}},
		{{7}, {8}, {9}},
	}}
	got, err := ExecOnce(backend, gramFn(1), x)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1}, got.Shape().Dimensions)
	require.InDelta(t, 23.5, got.Value().([][]float32)[0][0], 1e-5)

	// With offset 2 a single position remains: x[2, 2] * x[0, 0] = 9.
	got, err = ExecOnce(backend, gramFn(2), x)
	require.NoError(t, err)
	require.InDelta(t, 9.0, got.Value().([][]float32)[0][0], 1e-5)
}

func TestShiftedGramAsymmetry(t *testing.T) {
	backend := testBackend(t)
	// 2x2 activation, 2 channels, offset 1: a single valid position remains,
	// pairing position (1, 1) of the shifted copy with position (0, 0) of the
	// base. Channel values: a = (1, 2), b = (3, 5) at those two positions.
	x := [][][][]float32{{
		{{1, 3}, {0, 0}},
		{{0, 0}, {2, 5}},
	}}
	got, err := ExecOnce(backend, func(x *Node) *Node { return ShiftedGram(x, 1) }, x)
	require.NoError(t, err)
	g := got.Value().([][]float32)
	require.InDelta(t, 2.0, g[0][0], 1e-5)  // a(1,1) * a(0,0)
	require.InDelta(t, 6.0, g[0][1], 1e-5)  // a(1,1) * b(0,0)
	require.InDelta(t, 5.0, g[1][0], 1e-5)  // b(1,1) * a(0,0)
	require.InDelta(t, 15.0, g[1][1], 1e-5) // b(1,1) * b(0,0)
	require.NotEqual(t, g[0][1], g[1][0])
}

func TestShiftedGramRejectsBadInputs(t *testing.T) {
	backend := testBackend(t)
	g := NewGraph(backend, "test")
	x := Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 4, 4, 3))

	require.Panics(t, func() { ShiftedGram(x, 0) })  // A zero shift is not supported.
	require.Panics(t, func() { ShiftedGram(x, -1) }) // Neither is a negative one.
	require.Panics(t, func() { ShiftedGram(x, 4) })  // No valid positions left.

	rank3 := Parameter(g, "rank3", shapes.Make(dtypes.Float32, 4, 4, 3))
	require.Panics(t, func() { ShiftedGram(rank3, 1) })
}
