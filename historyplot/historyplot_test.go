// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package historyplot

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/optbench/cifaropt/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHistory = experiment.History{
	{Epoch: 1, TrainAccuracy: 0.30, ValidationAccuracy: 0.35},
	{Epoch: 2, TrainAccuracy: 0.45, ValidationAccuracy: 0.44},
	{Epoch: 3, TrainAccuracy: 0.52, ValidationAccuracy: 0.50},
}

func TestFromHistory(t *testing.T) {
	series := FromHistory(testHistory)
	require.Len(t, series, 2)
	assert.Equal(t, TrainSeries, series[0].Name)
	assert.Equal(t, []float64{1, 2, 3}, series[0].Epochs)
	assert.Equal(t, []float64{0.30, 0.45, 0.52}, series[0].Values)
	assert.Equal(t, ValidationSeries, series[1].Name)
	assert.Equal(t, []float64{0.35, 0.44, 0.50}, series[1].Values)

	noValidation := experiment.History{{Epoch: 1, TrainAccuracy: 0.2, ValidationAccuracy: math.NaN()}}
	series = FromHistory(noValidation)
	require.Len(t, series, 1)
	assert.Equal(t, TrainSeries, series[0].Name)
}

func TestSavePNG(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "history.png")
	require.NoError(t, SavePNG(filePath, "Adam", testHistory))
	contents, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(contents, []byte("\x89PNG")), "not a PNG file")

	require.Error(t, SavePNG(filepath.Join(t.TempDir(), "empty.png"), "empty", nil))
}

func TestSaveHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "RMSprop history", testHistory))
	page := buf.String()
	assert.Contains(t, page, "<title>RMSprop history</title>")
	assert.Contains(t, page, "Plotly.newPlot")

	filePath := filepath.Join(t.TempDir(), "history.html")
	require.NoError(t, SaveHTML(filePath, "RMSprop history", testHistory))
	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Error(t, SaveHTML(filepath.Join(t.TempDir(), "missing", "history.html"), "no dir", testHistory))
	emptyPath := filepath.Join(t.TempDir(), "empty.html")
	require.Error(t, SaveHTML(emptyPath, "empty", nil))
	info, err = os.Stat(emptyPath)
	require.NoError(t, err, "the file is created before the history is checked")
	assert.Equal(t, int64(0), info.Size())
}
