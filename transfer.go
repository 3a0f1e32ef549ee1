// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package deepimage

import (
	"fmt"
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"

	"github.com/ruanjiyang/deep-image/vgg19"
)

// State reports where a run is and the losses of its latest step.
type State struct {
	Epoch      int // Current epoch, 0-based.
	GlobalStep int // Steps taken so far, across epochs.

	StyleLoss, ContentLoss, SmoothnessLoss, TotalLoss float64
}

// Engine optimizes the pixels of a candidate image, initialized as a copy of
// the content image, to minimize the combined style, content and smoothness
// losses. Create it with NewEngine and either call Run for the whole loop, or
// Step and Checkpoint for a custom one.
type Engine struct {
	backend  backends.Backend
	cfg      *Config
	features FeatureFn

	ctx      *context.Context
	imageVar *context.Variable
	stepExec *context.Exec

	// Targets, computed once at construction, aligned with cfg.StyleLayers
	// and cfg.ContentLayers respectively.
	styleTargets   []*tensors.Tensor
	contentTargets []*tensors.Tensor

	state State
}

// NewEngine creates an Engine for the given content and style images, both
// shaped [1, height, width, 3] with values in [0.0, 1.0] (see LoadImage). The
// two images don't need to have the same dimensions.
//
// The style and content targets are computed here, once: the style image's
// correlation matrices and the content image's raw activations. The
// optimization steps only ever run the extractor on the candidate image.
func NewEngine(backend backends.Backend, cfg *Config, features FeatureFn, content, style *tensors.Tensor) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		backend:  backend,
		cfg:      cfg,
		features: features,
		ctx:      context.New(),
	}

	candidate, err := content.LocalClone()
	if err != nil {
		return nil, errors.WithMessage(err, "cloning content image into the candidate")
	}
	e.imageVar = e.ctx.VariableWithValue("image", candidate)

	e.styleTargets, err = e.computeTargets(style, cfg.StyleLayers, func(activation *Node) *Node {
		return ShiftedGram(activation, cfg.GramOffset)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "computing style targets")
	}
	e.contentTargets, err = e.computeTargets(content, cfg.ContentLayers, func(activation *Node) *Node {
		return activation
	})
	if err != nil {
		return nil, errors.WithMessage(err, "computing content targets")
	}

	e.stepExec, err = context.NewExec(e.backend, e.ctx, e.stepGraph)
	if err != nil {
		return nil, errors.WithMessage(err, "building the optimization step")
	}
	return e, nil
}

// computeTargets runs the extractor once on image and returns statistic(a) for
// the activation a of each of the given layers, in order.
func (e *Engine) computeTargets(image *tensors.Tensor, layerNames []string, statistic func(*Node) *Node) ([]*tensors.Tensor, error) {
	exec, err := context.NewExec(e.backend, e.ctx,
		func(ctx *context.Context, image *Node) []*Node {
			activations := e.features(ctx, image, layerNames...)
			outputs := make([]*Node, 0, len(layerNames))
			for _, name := range layerNames {
				outputs = append(outputs, statistic(activations[name]))
			}
			return outputs
		})
	if err != nil {
		return nil, err
	}
	defer exec.Finalize()
	return exec.Exec(image)
}

// stepGraph builds one optimization step: forward pass on the candidate,
// the three losses, a gradient update of the candidate's pixels and the
// projection back onto the valid range [0.0, 1.0].
func (e *Engine) stepGraph(ctx *context.Context, g *Graph) []*Node {
	cfg := e.cfg
	img := e.imageVar.ValueGraph(g)
	activations := e.features(ctx, img, cfg.featureLayers()...)

	grams := make([]*Node, len(cfg.StyleLayers))
	gramTargets := make([]*Node, len(cfg.StyleLayers))
	for i, name := range cfg.StyleLayers {
		grams[i] = ShiftedGram(activations[name], cfg.GramOffset)
		gramTargets[i] = ConstCachedTensor(g, e.styleTargets[i])
	}
	styleLoss := styleLossGraph(grams, gramTargets, cfg.StyleLayerWeights, cfg.StyleWeight)

	contentActivations := make([]*Node, len(cfg.ContentLayers))
	contentTargets := make([]*Node, len(cfg.ContentLayers))
	for i, name := range cfg.ContentLayers {
		contentActivations[i] = activations[name]
		contentTargets[i] = ConstCachedTensor(g, e.contentTargets[i])
	}
	contentLoss := contentLossGraph(contentActivations, contentTargets, cfg.ContentWeight)

	smoothnessLoss := MulScalar(TotalVariation(img), cfg.SmoothnessWeight)
	loss := Add(Add(styleLoss, contentLoss), smoothnessLoss)

	optimizer := optimizers.Adam().
		LearningRate(cfg.LearningRate).
		Betas(cfg.Beta1, 0.999).
		Epsilon(cfg.Epsilon).
		Done()
	optimizer.UpdateGraph(ctx, g, loss)

	// Project the updated candidate back onto valid pixel values.
	e.imageVar.SetValueGraph(ClipScalar(e.imageVar.ValueGraph(g), 0.0, 1.0))

	return []*Node{loss, styleLoss, contentLoss, smoothnessLoss}
}

// Step runs one optimization step and updates State with its losses.
func (e *Engine) Step() error {
	parts, err := e.stepExec.Exec()
	if err != nil {
		return errors.WithMessagef(err, "optimization step %d", e.state.GlobalStep)
	}
	e.state.GlobalStep++
	e.state.TotalLoss = float64(tensors.ToScalar[float32](parts[0]))
	e.state.StyleLoss = float64(tensors.ToScalar[float32](parts[1]))
	e.state.ContentLoss = float64(tensors.ToScalar[float32](parts[2]))
	e.state.SmoothnessLoss = float64(tensors.ToScalar[float32](parts[3]))
	for _, part := range parts {
		_ = part.FinalizeAll()
	}
	return nil
}

// State returns the engine's current state. Losses refer to the latest step
// and are zero before the first one.
func (e *Engine) State() State {
	return e.state
}

// Candidate returns the current candidate image, shaped like the content
// image, with values in [0.0, 1.0].
func (e *Engine) Candidate() (*tensors.Tensor, error) {
	return e.imageVar.Value()
}

// Checkpoint writes the current candidate to "epoch-<n>.jpg" in the
// configured output directory, n being the current epoch.
func (e *Engine) Checkpoint() error {
	candidate, err := e.Candidate()
	if err != nil {
		return err
	}
	return SaveImage(candidate, filepath.Join(e.cfg.OutputDir, fmt.Sprintf("epoch-%d.jpg", e.state.Epoch)))
}

// Run runs the whole optimization: Epochs x StepsPerEpoch steps, writing a
// checkpoint image at the end of every epoch. If an output directory is
// configured, the run's parameters are saved to it first.
//
// There is no early stopping: the loop always runs to completion.
func (e *Engine) Run() error {
	cfg := e.cfg
	if cfg.OutputDir != "" {
		if err := cfg.SaveParams(); err != nil {
			return err
		}
	}
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		e.state.Epoch = epoch
		for step := 0; step < cfg.StepsPerEpoch; step++ {
			if err := e.Step(); err != nil {
				return err
			}
			if cfg.Verbosity >= 1 {
				fmt.Print(".")
				if step%cfg.ReportEvery == 0 {
					fmt.Printf("\ncontent loss: %g style loss: %g\n", e.state.ContentLoss, e.state.StyleLoss)
				}
			}
		}
		if cfg.OutputDir != "" {
			if err := e.Checkpoint(); err != nil {
				return err
			}
		}
	}
	if cfg.Verbosity >= 1 {
		fmt.Printf("\nTrain step: %d\n", e.state.GlobalStep)
	}
	return nil
}

// Run wires a complete style transfer from the configuration alone: it
// downloads the pretrained weights if needed, loads and resizes both images,
// builds the VGG19 extractor and runs the optimization to completion.
func Run(backend backends.Backend, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model := vgg19.New(cfg.WeightsDir)
	if cfg.AveragePooling {
		model = model.WithPooling(vgg19.MeanPooling)
	}
	if err := model.CheckLayers(cfg.featureLayers()...); err != nil {
		return err
	}
	if err := vgg19.DownloadAndUnpackWeights(cfg.WeightsDir); err != nil {
		return err
	}

	content, err := LoadImage(cfg.ContentPath, cfg.MaxDim, cfg.ContentGrey)
	if err != nil {
		return err
	}
	style, err := LoadImage(cfg.StylePath, cfg.MaxDim, cfg.StyleGrey)
	if err != nil {
		return err
	}

	engine, err := NewEngine(backend, cfg, model.FeaturesGraph, content, style)
	if err != nil {
		return err
	}
	return engine.Run()
}
