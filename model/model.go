// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model builds the CIFAR-10 CNN classifier used to compare optimizers.
//
// The topology is fixed, only the number of filters, the kernel size and the dropout rate vary:
//
//	conv(F, K, relu) → maxpool(2×2) → conv(2F, K, relu) → maxpool(2×2) → conv(2F, K, relu) →
//	flatten → dense(64, relu) → dropout(D) → dense(10)
//
// Convolutions use no padding. The model function returns logits, Probabilities applies the softmax.
package model

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/optbench/cifaropt/cifar"
)

const (
	// ParamNumFilters is the context hyperparameter with the number of filters of the first convolution.
	ParamNumFilters = "cnn_num_filters"

	// ParamKernelSize is the context hyperparameter with the (square) convolution kernel size.
	ParamKernelSize = "cnn_kernel_size"

	// ParamDropoutRate is the context hyperparameter with the dropout rate before the last layer.
	ParamDropoutRate = "cnn_dropout_rate"

	// HiddenUnits of the dense layer after the convolutions.
	HiddenUnits = 64
)

// Hyperparameters of the model. It's a value type, a model build never changes it.
type Hyperparameters struct {
	Filters     int
	KernelSize  [2]int
	DropoutRate float64
}

// DefaultHyperparameters used in the optimizer comparison: 32 filters, 3x3 kernels and 0.5 dropout.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{Filters: 32, KernelSize: [2]int{3, 3}, DropoutRate: 0.5}
}

// HyperparametersFromContext reads the hyperparameters from the context, defaulting to DefaultHyperparameters.
func HyperparametersFromContext(ctx *context.Context) Hyperparameters {
	hp := DefaultHyperparameters()
	hp.Filters = context.GetParamOr(ctx, ParamNumFilters, hp.Filters)
	kernelSize := context.GetParamOr(ctx, ParamKernelSize, hp.KernelSize[0])
	hp.KernelSize = [2]int{kernelSize, kernelSize}
	hp.DropoutRate = context.GetParamOr(ctx, ParamDropoutRate, hp.DropoutRate)
	return hp
}

// New returns a train.ModelFn building the classifier with the given hyperparameters.
// The function returns the logits, shaped [batchSize, cifar.NumClasses].
//
// No validation is done here, invalid hyperparameters fail when the graph is built.
func New(hp Hyperparameters) train.ModelFn {
	return func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
		_ = spec
		return []*graph.Node{Logits(ctx, hp, inputs[0])}
	}
}

// Logits builds the classifier graph for images shaped [batchSize, 32, 32, 3].
func Logits(ctx *context.Context, hp Hyperparameters, images *graph.Node) *graph.Node {
	images.AssertDims(-1, cifar.Height, cifar.Width, cifar.Depth)
	g := images.Graph()
	batchSize := images.Shape().Dimensions[0]
	x := images

	layerIdx := 0
	nextCtx := func(name string) *context.Context {
		newCtx := ctx.Inf("%03d_%s", layerIdx, name)
		layerIdx++
		return newCtx
	}

	x = layers.Convolution(nextCtx("conv"), x).Channels(hp.Filters).
		KernelSizePerAxis(hp.KernelSize[0], hp.KernelSize[1]).NoPadding().Done()
	x = activations.Relu(x)
	x = graph.MaxPool(x).Window(2).Done()

	x = layers.Convolution(nextCtx("conv"), x).Channels(2*hp.Filters).
		KernelSizePerAxis(hp.KernelSize[0], hp.KernelSize[1]).NoPadding().Done()
	x = activations.Relu(x)
	x = graph.MaxPool(x).Window(2).Done()

	x = layers.Convolution(nextCtx("conv"), x).Channels(2*hp.Filters).
		KernelSizePerAxis(hp.KernelSize[0], hp.KernelSize[1]).NoPadding().Done()
	x = activations.Relu(x)

	x = graph.Reshape(x, batchSize, -1)
	x = layers.Dense(nextCtx("dense"), x, true, HiddenUnits)
	x = activations.Relu(x)
	if hp.DropoutRate > 0 {
		x = layers.DropoutNormalize(nextCtx("dropout"), x, graph.Scalar(g, x.DType(), hp.DropoutRate), true)
	}
	logits := layers.Dense(nextCtx("dense"), x, true, cifar.NumClasses)
	logits.AssertDims(batchSize, cifar.NumClasses)
	return logits
}

// Probabilities returns the softmax of the classifier logits, shaped [batchSize, cifar.NumClasses].
// Each row is a probability distribution over the classes.
func Probabilities(ctx *context.Context, hp Hyperparameters, images *graph.Node) *graph.Node {
	return graph.Softmax(Logits(ctx, hp, images), -1)
}

// OutputShape returns the spatial shape and number of channels after the last convolution, for
// 32x32 inputs. It follows the arithmetic of valid convolutions and 2x2 pooling with stride 2.
func OutputShape(hp Hyperparameters) (height, width, channels int) {
	height, width = cifar.Height, cifar.Width
	for ii := 0; ii < 3; ii++ {
		height -= hp.KernelSize[0] - 1
		width -= hp.KernelSize[1] - 1
		if ii < 2 {
			height /= 2
			width /= 2
		}
	}
	return height, width, 2 * hp.Filters
}
