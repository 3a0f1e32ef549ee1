// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

// Package vgg19 builds the convolutional part of the VGG19 network with
// pretrained ImageNet weights, exposing the activations of any of its
// intermediate layers.
//
// The weights are the ones distributed with Keras (see DownloadAndUnpackWeights)
// and are loaded as non-trainable variables, so the network can be used as a
// frozen feature extractor.
package vgg19

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

var (
	// blockConvs is the number of 3x3 convolutions in each of the 5 VGG19 blocks.
	blockConvs = [5]int{2, 2, 4, 4, 4}

	// blockChannels is the number of output channels of every convolution in
	// the corresponding block.
	blockChannels = [5]int{64, 128, 256, 512, 512}
)

// LayerNames returns the names of all layers whose activations can be
// extracted, in forward order: "block1_conv1", "block1_conv2", "block1_pool",
// ..., "block5_conv4", "block5_pool".
func LayerNames() []string {
	var names []string
	for b := range blockConvs {
		for c := 1; c <= blockConvs[b]; c++ {
			names = append(names, fmt.Sprintf("block%d_conv%d", b+1, c))
		}
		names = append(names, fmt.Sprintf("block%d_pool", b+1))
	}
	return names
}

// HasLayer returns whether name is a valid layer name. See LayerNames.
func HasLayer(name string) bool {
	for _, known := range LayerNames() {
		if name == known {
			return true
		}
	}
	return false
}

// Pooling selects the spatial down-sampling operation used between blocks.
type Pooling int

const (
	// MaxPooling is the pooling VGG19 was trained with.
	MaxPooling Pooling = iota

	// MeanPooling replaces every max-pool by an average-pool. The weights are
	// unchanged, only the pooling nodes differ. Gradients flowing back through
	// an average-pool are spread over the window instead of concentrated on the
	// max position, which tends to give smoother synthesized images.
	MeanPooling
)

// Model configures a VGG19 feature extractor. Create it with New, optionally
// change the pooling with WithPooling, and then use FeaturesGraph while
// building a computation graph.
type Model struct {
	baseDir string
	pooling Pooling
}

// New creates a Model that reads its pretrained weights from baseDir, as
// unpacked by DownloadAndUnpackWeights.
func New(baseDir string) *Model {
	return &Model{baseDir: baseDir}
}

// WithPooling sets the pooling operation used between blocks. It returns the
// model for chaining. The default is MaxPooling.
func (m *Model) WithPooling(pooling Pooling) *Model {
	m.pooling = pooling
	return m
}

// CheckLayers returns an error if any of the given names is not a valid layer
// name. It allows validating a configuration early, before any graph is built.
func (m *Model) CheckLayers(names ...string) error {
	for _, name := range names {
		if !HasLayer(name) {
			return errors.Errorf("unknown VGG19 layer %q, valid layers are %v", name, LayerNames())
		}
	}
	return nil
}

// FeaturesGraph runs image through the network and returns the activations of
// the requested layers, keyed by layer name. All requested activations come
// from the same forward pass. The network is only built up to the deepest
// requested layer.
//
// image must be shaped [batch_size, height, width, 3], with RGB values in the
// range [0.0, 1.0] -- preprocessing to the representation the weights expect
// is part of the graph.
//
// The pretrained weights are loaded into ctx as non-trainable variables the
// first time this is called, and reused afterwards. It panics on invalid layer
// names or if the weights cannot be read -- use CheckLayers and
// DownloadAndUnpackWeights beforehand.
func (m *Model) FeaturesGraph(ctx *context.Context, image *Node, layerNames ...string) map[string]*Node {
	if image.Rank() != 4 || image.Shape().Dimensions[3] != 3 {
		exceptions.Panicf("vgg19: image must be shaped [batch_size, height, width, 3], got %s", image.Shape())
	}
	wanted := make(map[string]bool, len(layerNames))
	for _, name := range layerNames {
		if !HasLayer(name) {
			exceptions.Panicf("vgg19: unknown layer %q, valid layers are %v", name, LayerNames())
		}
		wanted[name] = true
	}
	ctx = ctx.In("vgg19")
	taps := make(map[string]*Node, len(wanted))
	if len(wanted) == 0 {
		return taps
	}
	x := PreprocessGraph(image)
	for b := range blockConvs {
		for c := 1; c <= blockConvs[b]; c++ {
			name := fmt.Sprintf("block%d_conv%d", b+1, c)
			x = m.convRelu(ctx, name, x, blockChannels[b])
			if wanted[name] {
				taps[name] = x
			}
			if len(taps) == len(wanted) {
				return taps
			}
		}
		x = m.pool(x)
		name := fmt.Sprintf("block%d_pool", b+1)
		if wanted[name] {
			taps[name] = x
		}
		if len(taps) == len(wanted) {
			return taps
		}
	}
	return taps
}

// convRelu applies one pretrained 3x3 convolution (stride 1, "same" padding,
// with bias) followed by a Relu.
func (m *Model) convRelu(ctx *context.Context, name string, x *Node, channels int) *Node {
	ctxLayer := ctx.In(name).Checked(false)
	// Keras names the datasets "<layer>/<layer>/kernel:0" and "<layer>/<layer>/bias:0".
	group := fmt.Sprintf("%s/%s/", name, name)
	m.loadVariable(ctxLayer, group+"kernel:0", "weights")
	m.loadVariable(ctxLayer, group+"bias:0", "biases")
	x = layers.Convolution(ctxLayer, x).CurrentScope().
		Channels(channels).KernelSize(3).PadSame().Done()
	return activations.Relu(x)
}

// loadVariable reads the tensor saved under tensorName and creates the
// corresponding non-trainable variable in ctx's current scope, if not created
// yet.
func (m *Model) loadVariable(ctx *context.Context, tensorName, varName string) {
	if ctx.GetVariable(varName) != nil {
		return // Already loaded.
	}
	t, err := tensors.Load(PathToTensor(m.baseDir, tensorName))
	if err != nil {
		exceptions.Panicf("vgg19: failed to read pretrained weights from %q (see vgg19.DownloadAndUnpackWeights): %v",
			PathToTensor(m.baseDir, tensorName), err)
	}
	ctx.VariableWithValue(varName, t).SetTrainable(false)
}

func (m *Model) pool(x *Node) *Node {
	if m.pooling == MeanPooling {
		return MeanPool(x).ChannelsAxis(images.ChannelsLast).Window(2).Strides(2).NoPadding().Done()
	}
	return MaxPool(x).ChannelsAxis(images.ChannelsLast).Window(2).Strides(2).NoPadding().Done()
}
