// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"github.com/pkg/errors"
)

// Result of training and evaluating the model with one optimizer.
type Result struct {
	Optimizer    string
	TestLoss     float64
	TestAccuracy float64
}

// Results holds one Result per optimizer, in the order they were recorded.
type Results struct {
	entries []Result
}

// NewResults returns an empty Results.
func NewResults() *Results {
	return &Results{}
}

// Record appends the result of an optimizer. Recording the same optimizer twice is an error:
// entries are never overwritten.
func (r *Results) Record(result Result) error {
	for _, entry := range r.entries {
		if entry.Optimizer == result.Optimizer {
			return errors.Errorf("result for optimizer %q already recorded", result.Optimizer)
		}
	}
	if result.TestAccuracy < 0 || result.TestAccuracy > 1 {
		return errors.Errorf("optimizer %q: test accuracy %g is not in [0, 1]", result.Optimizer, result.TestAccuracy)
	}
	r.entries = append(r.entries, result)
	return nil
}

// Len returns the number of recorded results.
func (r *Results) Len() int {
	return len(r.entries)
}

// All returns a copy of the results, in recording order.
func (r *Results) All() []Result {
	return append([]Result(nil), r.entries...)
}

// Accuracies maps optimizer names to their test accuracy.
func (r *Results) Accuracies() map[string]float64 {
	accuracies := make(map[string]float64, len(r.entries))
	for _, entry := range r.entries {
		accuracies[entry.Optimizer] = entry.TestAccuracy
	}
	return accuracies
}

// Best returns the result with the highest test accuracy. Ties go to the one recorded first.
func (r *Results) Best() (Result, error) {
	if len(r.entries) == 0 {
		return Result{}, errors.New("no results recorded")
	}
	best := r.entries[0]
	for _, entry := range r.entries[1:] {
		if entry.TestAccuracy > best.TestAccuracy {
			best = entry
		}
	}
	return best, nil
}

// CheckComplete returns an error unless there is exactly one result per configured optimizer.
func (r *Results) CheckComplete(configs []OptimizerConfig) error {
	if len(r.entries) != len(configs) {
		return errors.Errorf("got %d results for %d optimizers", len(r.entries), len(configs))
	}
	accuracies := r.Accuracies()
	for _, c := range configs {
		if _, found := accuracies[c.Name]; !found {
			return errors.Errorf("missing result for optimizer %q", c.Name)
		}
	}
	return nil
}

// EpochMetrics holds the accuracies measured at the end of one epoch.
type EpochMetrics struct {
	// Epoch number, starting from 1.
	Epoch int

	// TrainAccuracy is the mean accuracy over the training batches of the epoch, with dropout active.
	TrainAccuracy float64

	// ValidationAccuracy on the held-out part of the training data. NaN if there is no validation data.
	ValidationAccuracy float64
}

// History is the per-epoch training history of one model.
type History []EpochMetrics
