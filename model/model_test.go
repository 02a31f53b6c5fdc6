// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"math/rand"
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/optbench/cifaropt/cifar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomImages(batchSize int, seed int64) *tensors.Tensor {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float32, batchSize*cifar.ImageSize)
	for ii := range values {
		values[ii] = rng.Float32()
	}
	return tensors.FromFlatDataAndDimensions(values, batchSize, cifar.Height, cifar.Width, cifar.Depth)
}

func TestProbabilities(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, hp := range []Hyperparameters{
		DefaultHyperparameters(),
		{Filters: 8, KernelSize: [2]int{5, 5}, DropoutRate: 0.1},
		{Filters: 4, KernelSize: [2]int{3, 1}, DropoutRate: 0},
	} {
		ctx := context.New()
		const batchSize = 5
		probsT := context.MustExecOnce(backend, ctx, func(ctx *context.Context, images *Node) *Node {
			return Probabilities(ctx, hp, images)
		}, randomImages(batchSize, int64(hp.Filters)))
		require.NoError(t, probsT.Shape().Check(dtypes.Float32, batchSize, cifar.NumClasses), "hyperparameters %+v", hp)
		probs := tensors.MustCopyFlatData[float32](probsT)
		for row := range batchSize {
			var sum float32
			for col := range cifar.NumClasses {
				p := probs[row*cifar.NumClasses+col]
				assert.GreaterOrEqual(t, p, float32(0))
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-4, "row %d of hyperparameters %+v", row, hp)
		}
	}
}

func TestNumParameters(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	hp := DefaultHyperparameters()
	hp.DropoutRate = 0
	ctx := context.New()
	logitsT := context.MustExecOnce(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return Logits(ctx, hp, images)
	}, randomImages(2, 1))
	require.NoError(t, logitsT.Shape().Check(dtypes.Float32, 2, cifar.NumClasses))

	// conv 3x3x3x32+32, conv 3x3x32x64+64, conv 3x3x64x64+64, dense 1024x64+64, dense 64x10+10.
	// The context also holds the (non-trainable) random number generator state.
	assert.Equal(t, 122570, numTrainableParameters(ctx))
}

func numTrainableParameters(ctx *context.Context) int {
	count := 0
	for v := range ctx.IterVariables() {
		if v.Trainable {
			count += v.Shape().Size()
		}
	}
	return count
}

func TestOutputShape(t *testing.T) {
	h, w, c := OutputShape(DefaultHyperparameters())
	assert.Equal(t, []int{4, 4, 64}, []int{h, w, c})
	h, w, c = OutputShape(Hyperparameters{Filters: 8, KernelSize: [2]int{5, 5}})
	assert.Equal(t, []int{1, 1, 16}, []int{h, w, c})
}

func TestHyperparametersFromContext(t *testing.T) {
	ctx := context.New()
	assert.Equal(t, DefaultHyperparameters(), HyperparametersFromContext(ctx))

	ctx.SetParams(map[string]any{
		ParamNumFilters:  16,
		ParamKernelSize:  5,
		ParamDropoutRate: 0.25,
	})
	assert.Equal(t, Hyperparameters{Filters: 16, KernelSize: [2]int{5, 5}, DropoutRate: 0.25},
		HyperparametersFromContext(ctx))
}

func TestNewModelFn(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	modelFn := New(DefaultHyperparameters())
	ctx := context.New()
	logitsT := context.MustExecOnce(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return modelFn(ctx, nil, []*Node{images})[0]
	}, randomImages(3, 7))
	require.NoError(t, logitsT.Shape().Check(dtypes.Float32, 3, cifar.NumClasses))
}
