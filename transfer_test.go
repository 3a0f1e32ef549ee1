// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

// pixelFeatures is a trivial extractor that exposes the image itself under
// every requested layer name. It keeps the engine tests independent of the
// pretrained weights.
func pixelFeatures(_ *context.Context, image *Node, layerNames ...string) map[string]*Node {
	features := make(map[string]*Node, len(layerNames))
	for _, name := range layerNames {
		features[name] = image
	}
	return features
}

func testEngineConfig() *Config {
	cfg := DefaultConfig()
	cfg.StyleLayers = []string{"pixels"}
	cfg.StyleLayerWeights = []float64{1}
	cfg.ContentLayers = []string{"pixels"}
	cfg.Epochs = 2
	cfg.StepsPerEpoch = 5
	cfg.LearningRate = 0.1
	cfg.Verbosity = 0
	return cfg
}

// testImage builds a deterministic [1, 4, 4, 3] image with values in [0, 1].
func testImage(seed float64) *tensors.Tensor {
	img := make([][][][]float32, 1)
	img[0] = make([][][]float32, 4)
	for i := range img[0] {
		img[0][i] = make([][]float32, 4)
		for j := range img[0][i] {
			img[0][i][j] = make([]float32, 3)
			for c := range img[0][i][j] {
				v := seed + 0.13*float64(i) + 0.31*float64(j) + 0.17*float64(c)
				img[0][i][j][c] = float32(v - float64(int(v))) // Fractional part.
			}
		}
	}
	return tensors.FromValue(img)
}

func TestEngineZeroEpochsKeepsContent(t *testing.T) {
	backend := testBackend(t)
	cfg := testEngineConfig()
	cfg.Epochs = 0
	content, style := testImage(0.2), testImage(0.7)
	engine, err := NewEngine(backend, cfg, pixelFeatures, content, style)
	require.NoError(t, err)
	require.NoError(t, engine.Run())
	require.Equal(t, 0, engine.State().GlobalStep)

	candidate, err := engine.Candidate()
	require.NoError(t, err)
	require.Equal(t, content.Value(), candidate.Value())
}

func TestEngineCheckpoints(t *testing.T) {
	backend := testBackend(t)
	cfg := testEngineConfig()
	cfg.Epochs = 3
	cfg.StepsPerEpoch = 50
	cfg.OutputDir = t.TempDir()
	engine, err := NewEngine(backend, cfg, pixelFeatures, testImage(0.2), testImage(0.7))
	require.NoError(t, err)
	require.NoError(t, engine.Run())

	require.Equal(t, 150, engine.State().GlobalStep)
	for _, name := range []string{"params.json", "epoch-0.jpg", "epoch-1.jpg", "epoch-2.jpg"} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		require.NoError(t, err, "expected %s to be written", name)
	}
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestEngineKeepsPixelsInRange(t *testing.T) {
	backend := testBackend(t)
	cfg := testEngineConfig()
	cfg.LearningRate = 5 // Large steps, to force the projection to clip.
	engine, err := NewEngine(backend, cfg, pixelFeatures, testImage(0.2), testImage(0.7))
	require.NoError(t, err)
	for step := 0; step < 20; step++ {
		require.NoError(t, engine.Step())
		candidate, err := engine.Candidate()
		require.NoError(t, err)
		for _, row := range candidate.Value().([][][][]float32)[0] {
			for _, pixel := range row {
				for _, v := range pixel {
					require.GreaterOrEqual(t, v, float32(0))
					require.LessOrEqual(t, v, float32(1))
				}
			}
		}
	}
}

func TestEngineIsDeterministic(t *testing.T) {
	backend := testBackend(t)
	run := func() (*tensors.Tensor, []float64) {
		engine, err := NewEngine(backend, testEngineConfig(), pixelFeatures, testImage(0.2), testImage(0.7))
		require.NoError(t, err)
		var losses []float64
		for step := 0; step < 10; step++ {
			require.NoError(t, engine.Step())
			losses = append(losses, engine.State().TotalLoss)
		}
		candidate, err := engine.Candidate()
		require.NoError(t, err)
		return candidate, losses
	}
	candidateA, lossesA := run()
	candidateB, lossesB := run()
	require.Equal(t, lossesA, lossesB)
	require.Equal(t, candidateA.Value(), candidateB.Value())
}

func TestEngineLosses(t *testing.T) {
	backend := testBackend(t)
	engine, err := NewEngine(backend, testEngineConfig(), pixelFeatures, testImage(0.2), testImage(0.7))
	require.NoError(t, err)
	require.NoError(t, engine.Step())
	state := engine.State()
	require.GreaterOrEqual(t, state.StyleLoss, 0.0)
	require.GreaterOrEqual(t, state.ContentLoss, 0.0)
	require.GreaterOrEqual(t, state.SmoothnessLoss, 0.0)
	require.InDelta(t, state.TotalLoss, state.StyleLoss+state.ContentLoss+state.SmoothnessLoss, 1e-4)
}

func TestEngineZeroStyleWeight(t *testing.T) {
	backend := testBackend(t)
	cfg := testEngineConfig()
	cfg.StyleWeight = 0
	engine, err := NewEngine(backend, cfg, pixelFeatures, testImage(0.2), testImage(0.7))
	require.NoError(t, err)
	for step := 0; step < 5; step++ {
		require.NoError(t, engine.Step())
		require.Equal(t, 0.0, engine.State().StyleLoss)
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	backend := testBackend(t)
	cfg := testEngineConfig()
	cfg.GramOffset = 0
	_, err := NewEngine(backend, cfg, pixelFeatures, testImage(0.2), testImage(0.7))
	require.Error(t, err)
}
