// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

package vgg19

import (
	"path"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"

	"github.com/ruanjiyang/deep-image/downloader"
	"github.com/ruanjiyang/deep-image/hdf5"
)

const (
	// WeightsURL points to the Keras distribution of the VGG19 weights,
	// trained on ImageNet, without the top classification layers.
	WeightsURL = "https://storage.googleapis.com/tensorflow/keras-applications/vgg19/vgg19_weights_tf_dim_ordering_tf_kernels_notop.h5"

	// WeightsH5Name is the local file name for the downloaded HDF5 file.
	WeightsH5Name = "vgg19_weights_notop.h5"

	// UnpackedWeightsName is the name of the subdirectory under which the
	// HDF5 file is unpacked, one GoMLX tensor file per dataset.
	UnpackedWeightsName = "vgg19_weights"

	// WeightsChecksum is the sha256 of the weights file at WeightsURL.
	// TODO: pin the sha256 once computed from a trusted download.
	WeightsChecksum = ""
)

// DownloadAndUnpackWeights downloads the pretrained VGG19 weights to baseDir
// (if not yet downloaded) and unpacks them to individual tensor files (if not
// yet unpacked).
//
// It requires the `h5dump` tool to be installed (package hdf5-tools in most
// distributions).
func DownloadAndUnpackWeights(baseDir string) error {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	h5Path := path.Join(baseDir, WeightsH5Name)
	if err := downloader.DownloadIfMissing(WeightsURL, h5Path, WeightsChecksum); err != nil {
		return errors.WithMessage(err, "downloading VGG19 weights")
	}
	unpackedPath := path.Join(baseDir, UnpackedWeightsName)
	if fsutil.MustFileExists(unpackedPath) {
		// Already unpacked on an earlier run.
		return nil
	}
	err := hdf5.UnpackToTensors(unpackedPath, h5Path).ProgressBar().Done()
	if err != nil {
		return errors.WithMessage(err, "unpacking VGG19 weights")
	}
	return nil
}

// PathToTensor returns the file path to the unpacked tensor saved under the
// given HDF5 dataset name, e.g. "block1_conv1/block1_conv1/kernel:0".
func PathToTensor(baseDir, tensorName string) string {
	return path.Join(fsutil.MustReplaceTildeInDir(baseDir), UnpackedWeightsName, tensorName)
}
