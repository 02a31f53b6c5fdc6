// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// Algorithms supported by OptimizerConfig.
const (
	AlgorithmSGD     = "sgd"
	AlgorithmAdam    = "adam"
	AlgorithmRMSProp = "rmsprop"
)

// OptimizerConfig names an optimizer algorithm and its hyperparameters.
type OptimizerConfig struct {
	// Name used to report the results, e.g. "SGD".
	Name string

	// Algorithm is one of AlgorithmSGD, AlgorithmAdam or AlgorithmRMSProp.
	Algorithm string

	LearningRate float64

	// Epsilon is used by Adam and RMSProp only. If 0, the library default is used.
	Epsilon float64
}

// DefaultOptimizers returns the optimizers compared by default, in training order, with the usual Keras defaults.
func DefaultOptimizers() []OptimizerConfig {
	return []OptimizerConfig{
		{Name: "SGD", Algorithm: AlgorithmSGD, LearningRate: 0.01},
		{Name: "Adam", Algorithm: AlgorithmAdam, LearningRate: 0.001, Epsilon: 1e-7},
		{Name: "RMSprop", Algorithm: AlgorithmRMSProp, LearningRate: 0.001, Epsilon: 1e-7},
	}
}

// Build creates a new optimizer instance. Each trained model should get its own.
func (c OptimizerConfig) Build() (optimizers.Interface, error) {
	if c.LearningRate <= 0 {
		return nil, errors.Errorf("optimizer %q: learning rate must be > 0, got %g", c.Name, c.LearningRate)
	}
	switch c.Algorithm {
	case AlgorithmSGD:
		return optimizers.StochasticGradientDescent().WithLearningRate(c.LearningRate).WithDecay(false).Done(), nil
	case AlgorithmAdam:
		adam := optimizers.Adam().LearningRate(c.LearningRate)
		if c.Epsilon > 0 {
			adam = adam.Epsilon(c.Epsilon)
		}
		return adam.Done(), nil
	case AlgorithmRMSProp:
		rmsProp := optimizers.RMSProp().LearningRate(c.LearningRate)
		if c.Epsilon > 0 {
			rmsProp = rmsProp.Epsilon(c.Epsilon)
		}
		return rmsProp.Done(), nil
	}
	return nil, errors.Errorf("optimizer %q: unknown algorithm %q, valid values are %q, %q and %q",
		c.Name, c.Algorithm, AlgorithmSGD, AlgorithmAdam, AlgorithmRMSProp)
}

// String returns the configuration in the format accepted by ParseOptimizers.
func (c OptimizerConfig) String() string {
	s := fmt.Sprintf("%s=%s:%g", c.Name, c.Algorithm, c.LearningRate)
	if c.Epsilon > 0 {
		s += fmt.Sprintf(":%g", c.Epsilon)
	}
	return s
}

// FormatOptimizers joins the configurations with ",", in the format accepted by ParseOptimizers.
func FormatOptimizers(configs []OptimizerConfig) string {
	parts := make([]string, 0, len(configs))
	for _, c := range configs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// ParseOptimizers parses a comma separated list of "name=algorithm:learning_rate[:epsilon]" entries,
// e.g. "SGD=sgd:0.01,Adam=adam:0.001". The order is kept, and names must be unique.
func ParseOptimizers(value string) ([]OptimizerConfig, error) {
	var configs []OptimizerConfig
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, def, found := strings.Cut(entry, "=")
		if !found || name == "" {
			return nil, errors.Errorf("invalid optimizer %q, expected \"name=algorithm:learning_rate[:epsilon]\"", entry)
		}
		fields := strings.Split(def, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, errors.Errorf("invalid optimizer %q, expected \"name=algorithm:learning_rate[:epsilon]\"", entry)
		}
		config := OptimizerConfig{Name: name, Algorithm: strings.ToLower(fields[0])}
		var err error
		config.LearningRate, err = strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid learning rate in optimizer %q", entry)
		}
		if len(fields) == 3 {
			config.Epsilon, err = strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid epsilon in optimizer %q", entry)
			}
		}
		if _, err = config.Build(); err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	if err := checkOptimizerNames(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func checkOptimizerNames(configs []OptimizerConfig) error {
	if len(configs) == 0 {
		return errors.New("no optimizers configured")
	}
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if seen[c.Name] {
			return errors.Errorf("optimizer name %q used more than once", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
