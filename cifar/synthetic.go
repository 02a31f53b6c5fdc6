// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cifar

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Synthetic provides a tiny random dataset with the same shapes as CIFAR-10: random pixels and random labels.
// It is used for smoke tests and to try the pipeline without downloading anything.
type Synthetic struct {
	NumTrain, NumTest int
	Seed              int64
}

var _ Provider = Synthetic{}

// Load implements Provider.
func (s Synthetic) Load() (*Split, error) {
	if s.NumTrain <= 0 || s.NumTest <= 0 {
		return nil, errors.Errorf("synthetic dataset needs a positive number of train and test examples, got %d and %d",
			s.NumTrain, s.NumTest)
	}
	rng := rand.New(rand.NewSource(s.Seed))
	return &Split{
		Train: randomImages(rng, s.NumTrain),
		Test:  randomImages(rng, s.NumTest),
	}, nil
}

func randomImages(rng *rand.Rand, count int) RawImages {
	images := RawImages{
		Pixels: make([]uint8, count*ImageSize),
		Labels: make([]int64, count),
	}
	for ii := range images.Pixels {
		images.Pixels[ii] = uint8(rng.Intn(256))
	}
	for ii := range images.Labels {
		images.Labels[ii] = rng.Int63n(NumClasses)
	}
	return images
}
