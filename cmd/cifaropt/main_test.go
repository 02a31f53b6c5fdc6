// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/optbench/cifaropt/cifar"
	"github.com/optbench/cifaropt/experiment"
	"github.com/optbench/cifaropt/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSynthetic(t *testing.T) {
	dir := t.TempDir()
	*flagPlot = filepath.Join(dir, "history.png")
	*flagPlotHTML = filepath.Join(dir, "history.html")
	*flagVerbosity = 0
	defer func() { *flagPlot, *flagPlotHTML = "", "" }()

	ctx := createDefaultContext()
	ctx.SetParams(map[string]any{
		experiment.ParamNumEpochs: 1,
		experiment.ParamBatchSize: 8,
		experiment.ParamSeed:      7,
		model.ParamNumFilters:     4,
	})
	var out bytes.Buffer
	provider := cifar.Synthetic{NumTrain: 24, NumTest: 8, Seed: 1}
	require.NoError(t, run(graphtest.BuildTestBackend(), ctx, provider, experiment.DefaultOptimizers(), &out))
	assert.Contains(t, out.String(), "Best optimizer: ")
	for _, name := range []string{*flagPlot, *flagPlotHTML} {
		_, err := os.Stat(name)
		require.NoError(t, err, "plot %q not created", name)
	}
}

func TestCreateProvider(t *testing.T) {
	defer func(dataDir string, synthetic int) { *flagDataDir, *flagSynthetic = dataDir, synthetic }(*flagDataDir, *flagSynthetic)

	*flagSynthetic = 10
	provider, err := createProvider()
	require.NoError(t, err)
	assert.Equal(t, cifar.Synthetic{NumTrain: 10, NumTest: 2, Seed: 1}, provider)

	// CIFAR-10 is only downloaded when loaded.
	*flagSynthetic = 0
	*flagDataDir = filepath.Join(t.TempDir(), "cifar")
	provider, err = createProvider()
	require.NoError(t, err)
	assert.Equal(t, cifar.Cifar10{DataDir: *flagDataDir}, provider)
	entries, err := os.ReadDir(*flagDataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestRunCifar10 downloads CIFAR-10 into -data and trains each optimizer for one epoch.
// It is disabled for short tests.
func TestRunCifar10(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	*flagPlot, *flagPlotHTML = "", ""
	*flagVerbosity = 0
	provider, err := createProvider()
	require.NoError(t, err)
	ctx := createDefaultContext()
	ctx.SetParam(experiment.ParamNumEpochs, 1)
	var out bytes.Buffer
	require.NoError(t, run(graphtest.BuildTestBackend(), ctx, provider, experiment.DefaultOptimizers(), &out))
	assert.Contains(t, out.String(), "Best optimizer: ")
}
