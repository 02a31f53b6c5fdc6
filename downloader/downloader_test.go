// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// tarGz builds an in-memory .tar.gz with a single directory holding one file.
func tarGz(t *testing.T, dir, name string, contents []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: dir + "/", Typeflag: tar.TypeDir, Mode: 0755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: dir + "/" + name, Mode: 0644, Size: int64(len(contents))}))
	_, err := tw.Write(contents)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownloadIfMissingChecksum(t *testing.T) {
	contents := []byte("cifar")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(contents)
	}))
	defer server.Close()

	filePath := path.Join(t.TempDir(), "data.bin")
	require.Error(t, DownloadIfMissing(server.URL, filePath, sha256Hex([]byte("other"))))
	exists, err := fsutil.FileExists(filePath)
	require.NoError(t, err)
	assert.False(t, exists, "file failing the checksum must be removed")

	require.NoError(t, DownloadIfMissing(server.URL, filePath, strings.ToUpper(sha256Hex(contents))))
	require.NoError(t, fsutil.ValidateChecksum(filePath, sha256Hex(contents)))
}

func TestCopyWithProgressBar(t *testing.T) {
	contents := bytes.Repeat([]byte{7}, 3000)
	for _, contentLength := range []int64{int64(len(contents)), -1} {
		var dst bytes.Buffer
		n, err := CopyWithProgressBar(&dst, bytes.NewReader(contents), contentLength)
		require.NoError(t, err)
		assert.Equal(t, int64(len(contents)), n)
		assert.Equal(t, contents, dst.Bytes())
	}
}

func TestDownloadIfMissing(t *testing.T) {
	contents := []byte("some dataset contents")
	var numRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		numRequests.Add(1)
		_, _ = w.Write(contents)
	}))
	defer server.Close()

	filePath := path.Join(t.TempDir(), "sub", "data.bin")
	require.NoError(t, DownloadIfMissing(server.URL, filePath, sha256Hex(contents)))
	got, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, contents, got)

	// Second call finds the file and doesn't download again.
	require.NoError(t, DownloadIfMissing(server.URL, filePath, sha256Hex(contents)))
	assert.Equal(t, int32(1), numRequests.Load())
}

func TestDownloadFailsOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	_, err := Download(server.URL, path.Join(t.TempDir(), "data.bin"), false)
	require.Error(t, err)
}

func TestDownloadAndUntarIfMissing(t *testing.T) {
	archive := tarGz(t, "batches", "data_batch_1.bin", []byte{1, 2, 3})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	baseDir := t.TempDir()
	require.NoError(t, DownloadAndUntarIfMissing(server.URL, baseDir, "batches.tar.gz", "batches", sha256Hex(archive)))
	got, err := os.ReadFile(path.Join(baseDir, "batches", "data_batch_1.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	// Target directory present: no-op even if the server is gone.
	server.Close()
	require.NoError(t, DownloadAndUntarIfMissing(server.URL, baseDir, "batches.tar.gz", "batches", ""))
}
