// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

// Command deep-image renders a content image in the style of a style image.
//
// Example:
//
//	deep-image -content photo.jpg -style painting.jpg -output results/
//
// It downloads the pretrained VGG19 weights on first use (it needs the
// `h5dump` tool installed for that, package hdf5-tools in most distributions).
// The backend is selected with the GOMLX_BACKEND environment variable; it
// defaults to XLA if available.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	deepimage "github.com/ruanjiyang/deep-image"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagContent = flag.String("content", "", "Content image file. Required.")
	flagStyle   = flag.String("style", "", "Style image file. Required.")
	flagOutput  = flag.String("output", "output", "Directory to write params.json and the per-epoch images to.")
	flagWeights = flag.String("weights", "~/.cache/deep-image", "Directory to download the pretrained VGG19 weights to.")

	flagMaxDim      = flag.Int("max_dim", 512, "Longer dimension both images are resized to, preserving aspect ratio.")
	flagContentGrey = flag.Bool("content_grey", false, "Convert the content image to greyscale.")
	flagStyleGrey   = flag.Bool("style_grey", false, "Convert the style image to greyscale: transfers texture without colors.")

	flagStyleLayers       = flag.String("style_layers", "", "Comma-separated style layers. Empty selects the defaults.")
	flagStyleLayerWeights = flag.String("style_layer_weights", "", "Comma-separated weights, one per style layer. Empty selects the defaults.")
	flagContentLayers     = flag.String("content_layers", "", "Comma-separated content layers. Empty selects the defaults.")
	flagGramOffset        = flag.Int("gram_offset", 1, "Spatial shift used by the style statistics, in activation cells, >= 1.")
	flagAvgPool           = flag.Bool("avg_pool", false, "Use average-pooling instead of max-pooling in the extractor.")

	flagStyleWeight   = flag.Float64("style_weight", 0.01, "Weight of the style loss.")
	flagContentWeight = flag.Float64("content_weight", 100, "Weight of the content loss.")
	flagTVWeight      = flag.Float64("tv_weight", 0.01, "Weight of the total-variation (smoothness) loss.")

	flagLearningRate = flag.Float64("learning_rate", 0.01, "Adam learning rate.")
	flagEpochs       = flag.Int("epochs", 20, "Number of epochs; an image is written at the end of each.")
	flagSteps        = flag.Int("steps_per_epoch", 100, "Optimization steps per epoch.")
	flagVerbosity    = flag.Int("verbosity", 1, "Level of verbosity, 0 for silent.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagContent == "" || *flagStyle == "" {
		fmt.Fprintln(os.Stderr, "Both -content and -style are required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg := deepimage.DefaultConfig()
	cfg.ContentPath = *flagContent
	cfg.StylePath = *flagStyle
	cfg.OutputDir = *flagOutput
	cfg.WeightsDir = *flagWeights
	cfg.MaxDim = *flagMaxDim
	cfg.ContentGrey = *flagContentGrey
	cfg.StyleGrey = *flagStyleGrey
	cfg.GramOffset = *flagGramOffset
	cfg.AveragePooling = *flagAvgPool
	cfg.StyleWeight = *flagStyleWeight
	cfg.ContentWeight = *flagContentWeight
	cfg.SmoothnessWeight = *flagTVWeight
	cfg.LearningRate = *flagLearningRate
	cfg.Epochs = *flagEpochs
	cfg.StepsPerEpoch = *flagSteps
	cfg.Verbosity = *flagVerbosity
	if *flagStyleLayers != "" {
		cfg.StyleLayers = splitList(*flagStyleLayers)
	}
	if *flagStyleLayerWeights != "" {
		cfg.StyleLayerWeights = parseFloats(*flagStyleLayerWeights)
	}
	if *flagContentLayers != "" {
		cfg.ContentLayers = splitList(*flagContentLayers)
	}
	must.M(cfg.Validate())

	backend := must.M1(backends.New())
	if cfg.Verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}
	must.M(deepimage.Run(backend, cfg))
}

func splitList(list string) []string {
	parts := strings.Split(list, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseFloats(list string) []float64 {
	parts := splitList(list)
	values := make([]float64, len(parts))
	for i, part := range parts {
		values[i] = must.M1(strconv.ParseFloat(part, 64))
	}
	return values
}
