// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cifar

import (
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/pkg/errors"
)

// Rescale converts raw pixel values (0 to 255) to float32 values from 0 to 1.
//
// This is the only place images are rescaled: it takes the raw bytes, so it can't be applied twice.
func Rescale(pixels []uint8) []float32 {
	values := make([]float32, len(pixels))
	for ii, p := range pixels {
		values[ii] = float32(p) / 255
	}
	return values
}

// ImagesTensor returns the rescaled images as a Float32 tensor shaped [Count, Height, Width, Depth].
func ImagesTensor(images RawImages) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(Rescale(images.Pixels), images.Count(), Height, Width, Depth)
}

// LabelsTensor returns the labels as an Int64 tensor shaped [Count, 1].
func LabelsTensor(images RawImages) *tensors.Tensor {
	labels := make([]int64, len(images.Labels))
	copy(labels, images.Labels)
	return tensors.FromFlatDataAndDimensions(labels, images.Count(), 1)
}

// SplitValidation holds out the trailing fraction of the examples for validation, and returns the
// leading ones for fitting. The split is contiguous, not shuffled, so it is the same for every run
// over the same data.
//
// If fraction > 0 and there are at least 2 examples, at least one example is held out.
func SplitValidation(images RawImages, fraction float64) (fit, validation RawImages, err error) {
	if fraction < 0 || fraction >= 1 {
		return RawImages{}, RawImages{}, errors.Errorf("validation fraction must be in [0, 1), got %g", fraction)
	}
	count := images.Count()
	splitAt := int(float64(count) * (1 - fraction))
	if fraction > 0 && count >= 2 && splitAt == count {
		splitAt = count - 1
	}
	return images.Slice(0, splitAt), images.Slice(splitAt, count), nil
}

// NewDataset creates an in-memory dataset yielding rescaled images as inputs and labels as labels.
// The name must have at least 3 characters.
func NewDataset(backend backends.Backend, name string, images RawImages) (*datasets.InMemoryDataset, error) {
	if images.Count() == 0 {
		return nil, errors.Errorf("dataset %q has no examples", name)
	}
	if err := images.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	ds, err := datasets.InMemoryFromData(backend, name,
		[]any{ImagesTensor(images)}, []any{LabelsTensor(images)})
	if err != nil {
		return nil, errors.WithMessagef(err, "creating dataset %q", name)
	}
	return ds, nil
}
