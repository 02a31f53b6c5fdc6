// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cifar

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Batches implements train.Dataset, yielding the rescaled images and their labels in batches.
//
// If created with a random number generator, the order is reshuffled at every Reset (so at every epoch)
// using only that generator: two Batches created over the same images with generators seeded equally
// yield exactly the same sequence of batches.
type Batches struct {
	name      string
	batchSize int

	// values holds the rescaled images, [count, Height, Width, Depth].
	values []float32
	labels []int64

	mu       sync.Mutex
	rng      *rand.Rand
	order    []int
	position int
}

var _ train.Dataset = (*Batches)(nil)

// NewBatches creates a Batches over images. The last batch of an epoch may be smaller than batchSize.
// If rng is nil, the images are yielded in their original order.
func NewBatches(name string, images RawImages, batchSize int, rng *rand.Rand) (*Batches, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %q: batch size must be > 0, got %d", name, batchSize)
	}
	if images.Count() == 0 {
		return nil, errors.Errorf("dataset %q has no examples", name)
	}
	if err := images.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	b := &Batches{
		name:      name,
		batchSize: batchSize,
		values:    Rescale(images.Pixels),
		labels:    images.Labels,
		rng:       rng,
	}
	b.Reset()
	return b, nil
}

// Name implements train.Dataset.
func (b *Batches) Name() string { return b.name }

// NumExamples yielded per epoch.
func (b *Batches) NumExamples() int { return len(b.labels) }

// Reset implements train.Dataset. It restarts the epoch and, if there is a random number generator,
// draws a new order.
func (b *Batches) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = 0
	if b.rng != nil {
		b.order = b.rng.Perm(len(b.labels))
		return
	}
	if b.order == nil {
		b.order = make([]int, len(b.labels))
		for ii := range b.order {
			b.order[ii] = ii
		}
	}
}

// Yield implements train.Dataset: images shaped [batchSize, Height, Width, Depth] as inputs and
// labels shaped [batchSize, 1] as labels. It returns io.EOF at the end of the epoch.
func (b *Batches) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position >= len(b.order) {
		return nil, nil, nil, io.EOF
	}
	end := min(b.position+b.batchSize, len(b.order))
	indices := b.order[b.position:end]
	b.position = end

	batchValues := make([]float32, 0, len(indices)*ImageSize)
	batchLabels := make([]int64, 0, len(indices))
	for _, idx := range indices {
		batchValues = append(batchValues, b.values[idx*ImageSize:(idx+1)*ImageSize]...)
		batchLabels = append(batchLabels, b.labels[idx])
	}
	inputs = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(batchValues, len(indices), Height, Width, Depth)}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(batchLabels, len(indices), 1)}
	return
}
