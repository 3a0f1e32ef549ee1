// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

// Package deepimage synthesizes images by neural style transfer: given a
// content image and a style image, it optimizes the pixels of a candidate
// image so that its deep activations match the content image's, while the
// correlations among its deep activations match the style image's.
//
// The activations come from a frozen pretrained network (see the vgg19
// sub-package), and the optimization is plain gradient descent on the pixels
// themselves -- no model is trained.
//
// Typical use is through Run, which wires everything together from a Config.
// For finer control (custom feature extractors, custom loops) use NewEngine
// directly.
package deepimage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Config holds all the knobs of a style transfer run. Start from
// DefaultConfig and override what you need, then check it with Validate.
type Config struct {
	// ContentPath and StylePath are the files with the content and style
	// images. Any format supported by the imaging library works.
	ContentPath string `json:"content_path"`
	StylePath   string `json:"style_path"`

	// ContentGrey and StyleGrey convert the corresponding image to greyscale
	// (replicated over the 3 channels) before the run. Stylizing with
	// StyleGrey transfers the style's texture without its colors.
	ContentGrey bool `json:"content_grey"`
	StyleGrey   bool `json:"style_grey"`

	// MaxDim is the target size of the longer dimension of both images: they
	// are resized, preserving aspect ratio, so their longer dimension is
	// exactly MaxDim pixels.
	MaxDim int `json:"max_dim"`

	// StyleLayers are the layers whose correlation statistics define the
	// style. StyleLayerWeights, of the same length, weighs their
	// contributions; deeper layers usually get larger weights.
	StyleLayers       []string  `json:"style_layers"`
	StyleLayerWeights []float64 `json:"style_layer_weights"`

	// ContentLayers are the layers whose raw activations define the content.
	ContentLayers []string `json:"content_layers"`

	// GramOffset is the spatial shift, in activation cells, used when
	// correlating channels for the style statistics. Must be >= 1: a positive
	// shift captures how the texture relates to a translated copy of itself.
	GramOffset int `json:"gram_offset"`

	// StyleWeight, ContentWeight and SmoothnessWeight scale the three loss
	// terms. SmoothnessWeight scales the total variation of the candidate
	// image, penalizing high-frequency noise.
	StyleWeight      float64 `json:"style_weight"`
	ContentWeight    float64 `json:"content_weight"`
	SmoothnessWeight float64 `json:"total_variation_weight"`

	// AveragePooling replaces the extractor's max-pooling by average-pooling,
	// which gives smoother gradients. See vgg19.MeanPooling.
	AveragePooling bool `json:"average_pool"`

	// Optimizer (Adam) parameters.
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1"`
	Epsilon      float64 `json:"epsilon"`

	// Epochs and StepsPerEpoch define the length of the run: Epochs *
	// StepsPerEpoch optimization steps in total, with a checkpoint image
	// written at the end of every epoch.
	Epochs        int `json:"epochs"`
	StepsPerEpoch int `json:"steps_per_epoch"`

	// OutputDir is where the run writes its outputs: a params.json with this
	// configuration, and one "epoch-<n>.jpg" checkpoint per epoch. If empty,
	// nothing is written.
	OutputDir string `json:"-"`

	// WeightsDir is where the pretrained weights are downloaded to and read
	// from.
	WeightsDir string `json:"-"`

	// ReportEvery is the step interval at which losses are reported.
	ReportEvery int `json:"-"`

	// Verbosity controls progress output: 0 is silent, 1 reports progress and
	// losses to stdout.
	Verbosity int `json:"-"`
}

// DefaultConfig returns a configuration with reasonable defaults for the
// VGG19 extractor. Image paths must still be set.
func DefaultConfig() *Config {
	return &Config{
		MaxDim:            512,
		StyleLayers:       []string{"block1_conv1", "block2_conv1", "block3_conv1", "block4_conv1", "block5_conv1"},
		StyleLayerWeights: []float64{0.1, 0.2, 0.5, 0.8, 1.0},
		ContentLayers:     []string{"block4_conv1"},
		GramOffset:        1,
		StyleWeight:       0.01,
		ContentWeight:     100,
		SmoothnessWeight:  0.01,
		LearningRate:      0.01,
		Beta1:             0.99,
		Epsilon:           0.1,
		Epochs:            20,
		StepsPerEpoch:     100,
		WeightsDir:        "~/.cache/deep-image",
		ReportEvery:       20,
		Verbosity:         1,
	}
}

// Validate returns an error describing the first problem found in the
// configuration, or nil if it is usable.
func (cfg *Config) Validate() error {
	if len(cfg.StyleLayers) == 0 {
		return errors.New("config: at least one style layer is required")
	}
	if len(cfg.StyleLayerWeights) != len(cfg.StyleLayers) {
		return errors.Errorf("config: got %d style layer weights for %d style layers",
			len(cfg.StyleLayerWeights), len(cfg.StyleLayers))
	}
	if len(cfg.ContentLayers) == 0 {
		return errors.New("config: at least one content layer is required")
	}
	if cfg.GramOffset < 1 {
		return errors.Errorf("config: gram offset must be >= 1, got %d", cfg.GramOffset)
	}
	if cfg.MaxDim <= 0 {
		return errors.Errorf("config: max dimension must be positive, got %d", cfg.MaxDim)
	}
	if cfg.LearningRate <= 0 {
		return errors.Errorf("config: learning rate must be positive, got %g", cfg.LearningRate)
	}
	if cfg.Epochs < 0 || cfg.StepsPerEpoch < 0 {
		return errors.Errorf("config: epochs (%d) and steps per epoch (%d) must not be negative",
			cfg.Epochs, cfg.StepsPerEpoch)
	}
	if cfg.ReportEvery <= 0 {
		return errors.Errorf("config: report interval must be positive, got %d", cfg.ReportEvery)
	}
	return nil
}

// featureLayers returns the union of style and content layers, in order and
// without duplicates. All activations are extracted in one forward pass.
func (cfg *Config) featureLayers() []string {
	seen := make(map[string]bool, len(cfg.StyleLayers)+len(cfg.ContentLayers))
	var layerNames []string
	for _, name := range append(append([]string{}, cfg.StyleLayers...), cfg.ContentLayers...) {
		if !seen[name] {
			seen[name] = true
			layerNames = append(layerNames, name)
		}
	}
	return layerNames
}

// SaveParams creates OutputDir if needed and writes the configuration to
// params.json in it, so a run's outputs always carry the parameters that
// produced them.
func (cfg *Config) SaveParams() error {
	if err := os.MkdirAll(cfg.OutputDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", cfg.OutputDir)
	}
	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode parameters")
	}
	paramsPath := filepath.Join(cfg.OutputDir, "params.json")
	if err := os.WriteFile(paramsPath, encoded, 0666); err != nil {
		return errors.Wrapf(err, "failed to write %q", paramsPath)
	}
	return nil
}
