// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

// Package hdf5 extracts tensors from HDF5 files (the format Keras uses to
// distribute pretrained weights) into individual files in GoMLX tensor
// format, one file per dataset, mirroring the HDF5 group structure.
//
// It shells out to the `h5dump` binary (from the hdf5-tools package) instead
// of binding to libhdf5: the weight files are read once, unpacked, and never
// touched again.
package hdf5

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// H5DumpBinary is the binary used to parse HDF5 files. It must be in the PATH.
const H5DumpBinary = "h5dump"

// Dataset describes one dataset (a named tensor) inside an HDF5 file. Its
// key is the concatenation of the HDF5 "group" path with the dataset name,
// separated by "/".
type Dataset struct {
	FilePath, GroupPath string

	// DType and Shape are parsed from the dataset header. Shape is left
	// invalid for datasets whose type or shape GoMLX cannot represent.
	DType dtypes.DType
	Shape shapes.Shape
}

// Contents maps the group path of each dataset of an HDF5 file to its metadata.
type Contents map[string]*Dataset

var (
	regexpDatasets     = regexp.MustCompile(`\s+dataset\s+(/.*)\n`)
	regexpDatasetName  = regexp.MustCompile(`\s+"(.*?)" \{\n`)
	regexpDatasetType  = regexp.MustCompile(`\s+DATATYPE\s+(\w.*?)\n`)
	regexpDatasetSpace = regexp.MustCompile(`\s+DATASPACE\s+(\w+)(\s+\{\s+\((.*?)\).*?)?\n`)
)

// ParseFile lists the datasets of the HDF5 file in filePath, along with their
// dtypes and shapes where parseable.
func ParseFile(filePath string) (Contents, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, errors.Wrapf(err, "cannot access HDF5 file in %q", filePath)
	}
	listing, err := execH5Dump("--contents", filePath)
	if err != nil {
		return nil, err
	}
	matches := regexpDatasets.FindAllStringSubmatch(string(listing), -1)
	contents := make(Contents, len(matches))
	for _, match := range matches {
		groupPath := match[1]
		if strings.HasPrefix(groupPath, "-") {
			// h5dump would interpret it as a flag.
			return nil, errors.Errorf("invalid dataset name starting with '-': %q", groupPath)
		}
		contents[groupPath] = &Dataset{FilePath: filePath, GroupPath: groupPath}
	}

	// One h5dump call for all the dataset headers.
	args := make([]string, 0, len(contents)+2)
	args = append(args, "--header")
	for key := range contents {
		args = append(args, "--dataset="+key)
	}
	args = append(args, filePath)
	headers, err := execH5Dump(args...)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(string(headers), "DATASET")
	if len(parts)-1 != len(contents) {
		return nil, errors.Errorf("failed to parse dataset headers of %q: expected %d DATASET sections, got %d",
			filePath, len(contents), len(parts)-1)
	}
	for _, part := range parts[1:] {
		if err := parseDatasetHeader(contents, filePath, part); err != nil {
			return nil, err
		}
	}
	return contents, nil
}

// parseDatasetHeader fills in the DType and Shape of the dataset whose
// header section is given in part. Unsupported dtypes or dataspaces leave
// the Shape invalid, which marks the dataset as not convertible to a tensor.
func parseDatasetHeader(contents Contents, filePath, part string) error {
	matches := regexpDatasetName.FindStringSubmatch(part)
	if len(matches) != 2 {
		return errors.Errorf("failed to parse dataset header of %q: got %q", filePath, part)
	}
	ds, found := contents[matches[1]]
	if !found {
		return errors.Errorf("header for unknown dataset in %q: got %q", filePath, part)
	}

	matches = regexpDatasetType.FindStringSubmatch(part)
	if len(matches) != 2 {
		return nil
	}
	ds.DType = DTypeForH5T(matches[1])
	if ds.DType == dtypes.InvalidDType {
		return nil
	}

	matches = regexpDatasetSpace.FindStringSubmatch(part)
	if len(matches) != 4 {
		return nil
	}
	switch matches[1] {
	case "SCALAR":
		ds.Shape = shapes.Make(ds.DType)
	case "SIMPLE":
		dimsParts := strings.Split(matches[3], ",")
		dims := make([]int, 0, len(dimsParts))
		for _, dimStr := range dimsParts {
			dim, numErr := strconv.Atoi(strings.TrimSpace(dimStr))
			if numErr != nil {
				klog.Warningf("hdf5: failed to parse DATASPACE dimensions of dataset %q in %q", ds.GroupPath, filePath)
				return nil
			}
			dims = append(dims, dim)
		}
		ds.Shape = shapes.Make(ds.DType, dims...)
	}
	return nil
}

// DTypeForH5T returns the DType corresponding to known HDF5 types, or
// dtypes.InvalidDType for types GoMLX doesn't support.
func DTypeForH5T(h5type string) dtypes.DType {
	switch h5type {
	case "H5T_IEEE_F32LE", "H5T_IEEE_F32BE":
		return dtypes.Float32
	case "H5T_IEEE_F64LE", "H5T_IEEE_F64BE":
		return dtypes.Float64
	case "H5T_STD_I32LE", "H5T_STD_I32BE":
		return dtypes.Int32
	case "H5T_STD_I64LE", "H5T_STD_I64BE":
		return dtypes.Int64
	}
	return dtypes.InvalidDType
}

// ToTensor reads the dataset contents into a tensors.Tensor.
func (ds *Dataset) ToTensor() (*tensors.Tensor, error) {
	if !ds.Shape.Ok() {
		return nil, errors.Errorf("dataset %q has no tensor-compatible shape information", ds.GroupPath)
	}
	raw, err := ds.load()
	if err != nil {
		return nil, err
	}
	t := tensors.FromShape(ds.Shape)
	var sizeErr error
	accessErr := t.MutableBytes(func(data []byte) {
		if len(raw) != len(data) {
			sizeErr = errors.Errorf("dataset %q: loaded %d bytes for a tensor of %d bytes (shape %s)",
				ds.GroupPath, len(raw), len(data), ds.Shape)
			return
		}
		copy(data, raw)
	})
	if accessErr != nil {
		return nil, accessErr
	}
	if sizeErr != nil {
		return nil, sizeErr
	}
	return t, nil
}

// load extracts the raw binary contents of the dataset with h5dump, going
// through a temporary file (h5dump has no binary output to stdout).
func (ds *Dataset) load() ([]byte, error) {
	tmpFile, err := os.CreateTemp("", "hdf5_dataset")
	if err == nil {
		err = tmpFile.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create temporary file to extract HDF5 dataset")
	}
	defer func() {
		if rmErr := os.Remove(tmpFile.Name()); rmErr != nil {
			klog.Warningf("hdf5: failed to remove temporary file %q: %+v", tmpFile.Name(), rmErr)
		}
	}()
	_, err = execH5Dump("--dataset="+ds.GroupPath, "--binary=NATIVE", "--output="+tmpFile.Name(), ds.FilePath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read extracted HDF5 dataset from %q", tmpFile.Name())
	}
	return raw, nil
}

func execH5Dump(args ...string) ([]byte, error) {
	binPath, err := exec.LookPath(H5DumpBinary)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot find %q in PATH, needed to parse HDF5 (\".h5\") files -- "+
			"it is usually distributed in the hdf5-tools package", H5DumpBinary)
	}
	cmd := exec.Command(binPath, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdoutBuf, &stderrBuf
	if err = cmd.Run(); err != nil {
		err = errors.Wrapf(err, "failed executing %q to access HDF5 file", cmd)
		return nil, errors.WithMessagef(err, "STDERR captured:\n%s\n", stderrBuf.String())
	}
	return stdoutBuf.Bytes(), nil
}

// UnpackConfig is created by UnpackToTensors and holds the unpacking
// configuration. Call Done to run the unpacking.
type UnpackConfig struct {
	h5Path, targetDir string
	showProgressBar   bool
	dirPermissions    os.FileMode
}

// UnpackToTensors unpacks the datasets of an HDF5 file into one GoMLX tensor
// file per dataset under targetDir, in subdirectories mirroring the HDF5
// group structure. The targetDir must not yet exist: its presence is used as
// the marker that unpacking already happened.
//
// It returns a configuration object; call Done to run it:
//
//	err := hdf5.UnpackToTensors("/my/target/dir", "weights.h5").ProgressBar().Done()
//
// Tensors are written with tensors.Tensor.Save and read back with tensors.Load.
func UnpackToTensors(targetDir, h5Path string) *UnpackConfig {
	return &UnpackConfig{
		h5Path:         h5Path,
		targetDir:      targetDir,
		dirPermissions: 0755,
	}
}

// ProgressBar displays a progress bar during the unpacking.
func (c *UnpackConfig) ProgressBar() *UnpackConfig {
	c.showProgressBar = true
	return c
}

// FilePermissions sets the permissions of the created directories.
// Defaults to 0755.
func (c *UnpackConfig) FilePermissions(perm os.FileMode) *UnpackConfig {
	c.dirPermissions = perm
	return c
}

// Done unpacks according to the configuration. It unpacks to a temporary
// sibling directory first and renames it to targetDir only on success, so a
// partially unpacked directory is never mistaken for a complete one.
func (c *UnpackConfig) Done() (err error) {
	if fsutil.MustFileExists(c.targetDir) {
		return errors.Errorf("target directory %q already exists -- remove it or move it away first", c.targetDir)
	}
	contents, err := ParseFile(c.h5Path)
	if err != nil {
		return err
	}

	baseDir := path.Dir(c.targetDir)
	if err = os.MkdirAll(baseDir, c.dirPermissions); err != nil {
		return errors.Wrapf(err, "can't create base directory %q to unpack the HDF5 file to", baseDir)
	}
	tmpDir, err := os.MkdirTemp(baseDir, path.Base(c.targetDir)+".")
	if err != nil {
		return errors.Wrapf(err, "can't create temporary directory under %q to unpack the HDF5 file to", baseDir)
	}
	defer func() {
		if tmpDir == "" {
			return
		}
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			klog.Errorf("hdf5.UnpackToTensors(%q, %q): error cleaning up temporary directory %q: %v",
				c.targetDir, c.h5Path, tmpDir, rmErr)
		}
	}()

	var bar *progressbar.ProgressBar
	if c.showProgressBar {
		var totalSize uintptr
		for _, ds := range contents {
			if ds.Shape.Ok() {
				totalSize += ds.Shape.Memory()
			}
		}
		bar = progressbar.DefaultBytesSilent(int64(totalSize), "unpacking")
		defer func() { _ = bar.Finish() }()
	}

	for key, ds := range contents {
		if !ds.Shape.Ok() {
			klog.V(1).Infof("hdf5.UnpackToTensors(%q, %q): skipping dataset %q not parseable as a tensor",
				c.targetDir, c.h5Path, key)
			continue
		}
		var t *tensors.Tensor
		t, err = ds.ToTensor()
		if err != nil {
			return err
		}
		dsPath := path.Join(tmpDir, key)
		if err = os.MkdirAll(path.Dir(dsPath), c.dirPermissions); err != nil {
			return errors.Wrapf(err, "hdf5.UnpackToTensors(%q, %q): can't create sub-directory %q",
				c.targetDir, c.h5Path, path.Dir(dsPath))
		}
		if err = t.Save(dsPath); err != nil {
			return errors.WithMessagef(err, "hdf5.UnpackToTensors(%q, %q)", c.targetDir, c.h5Path)
		}
		if bar != nil {
			_ = bar.Add64(int64(ds.Shape.Memory()))
			fmt.Printf("\r%s", bar.String())
		}
	}

	if err = os.Rename(tmpDir, c.targetDir); err != nil {
		return errors.Wrapf(err, "hdf5.UnpackToTensors(%q, %q): failed to rename temporary dir %q to target %q",
			c.targetDir, c.h5Path, tmpDir, c.targetDir)
	}
	tmpDir = "" // Disarms the deferred clean-up.
	return nil
}
