// Copyright 2026 The Deep-Image Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader fetches pretrained weight files over HTTP, with a
// progress bar and optional sha256 verification.
//
// It downloads to the final path directly, so interrupted downloads must be
// removed by hand (or they will fail the checksum verification).
package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// bytesBar wraps a progressbar.ProgressBar into an io.Writer that can be used
// with io.Copy. progressbar's own writer doesn't play well when the content
// length is unknown, hence the wrapper.
type bytesBar struct {
	bar *progressbar.ProgressBar
}

func newBytesBar(contentLength int64) *bytesBar {
	return &bytesBar{
		bar: progressbar.DefaultBytesSilent(contentLength, "downloading"),
	}
}

// Write implements io.Writer: it only moves the progress bar forward.
func (b *bytesBar) Write(p []byte) (n int, err error) {
	n = len(p)
	_ = b.bar.Add(n)
	fmt.Printf("\r%s", b.bar.String())
	return
}

func (b *bytesBar) finish() {
	_ = b.bar.Finish()
	fmt.Printf("\r%s\n", b.bar.String())
}

// Download the given url to filePath, creating intermediary directories as
// needed. It returns the number of bytes downloaded.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath = fsutil.MustReplaceTildeInDir(filePath)
	err = os.MkdirAll(path.Dir(filePath), 0777)
	if err != nil && !os.IsExist(err) {
		return 0, errors.Wrapf(err, "failed to create directory %q for download", path.Dir(filePath))
	}
	file, err := os.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", filePath)
	}
	client := http.Client{
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			r.URL.Opaque = r.URL.Path
			return nil
		},
	}
	resp, err := client.Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}

	if showProgressBar {
		bar := newBytesBar(resp.ContentLength)
		size, err = io.Copy(io.MultiWriter(file, bar), resp.Body)
		bar.finish()
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", filePath)
	}
	if err = resp.Body.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing connection to %q", url)
	}
	return size, nil
}

// DownloadIfMissing downloads url to filePath if filePath doesn't yet exist.
//
// If checkHash is not empty, the file contents (pre-existing or freshly
// downloaded) are verified against the given sha256 hash, and an error is
// returned on mismatch.
func DownloadIfMissing(url, filePath, checkHash string) error {
	filePath = fsutil.MustReplaceTildeInDir(filePath)
	if !fsutil.MustFileExists(filePath) {
		fmt.Printf("Downloading %s ...\n", url)
		if _, err := Download(url, filePath, true); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return fsutil.ValidateChecksum(filePath, checkHash)
}
