// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package experiment trains the same CNN once per optimizer on CIFAR-10, evaluates each on the test split
// and ranks the optimizers by test accuracy.
//
// Every optimizer starts from a freshly initialized model with the same topology and hyperparameters,
// so the optimizer is the only thing that changes between runs.
package experiment

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/optbench/cifaropt/cifar"
	"github.com/optbench/cifaropt/model"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context hyperparameters read by ConfigFromContext.
const (
	ParamNumEpochs       = "num_epochs"
	ParamBatchSize       = "batch_size"
	ParamEvalBatchSize   = "eval_batch_size"
	ParamValidationSplit = "validation_split"
	ParamSeed            = "seed"
)

// Config of the comparison. The same configuration is used for every optimizer.
type Config struct {
	Epochs        int
	BatchSize     int
	EvalBatchSize int

	// ValidationSplit is the fraction of the training data held out (from its end) to measure
	// validation accuracy after each epoch.
	ValidationSplit float64

	Hyperparameters model.Hyperparameters

	// Verbosity: 0 prints only the per-epoch and per-optimizer lines, 1 or more adds a progress bar.
	Verbosity int

	// Seed for weights initialization, dropout and the order of the training examples.
	// If 0, a random seed is drawn once per Run. Either way every optimizer gets the same seed, so it
	// starts from the same weights and sees the examples in the same order.
	Seed int64
}

// DefaultConfig returns 10 epochs, batches of 64 and 10% of the training data held out for validation.
func DefaultConfig() Config {
	return Config{
		Epochs:          10,
		BatchSize:       64,
		EvalBatchSize:   256,
		ValidationSplit: 0.1,
		Hyperparameters: model.DefaultHyperparameters(),
		Verbosity:       1,
	}
}

// ConfigFromContext returns DefaultConfig overwritten by the hyperparameters set in the context.
func ConfigFromContext(ctx *context.Context) Config {
	config := DefaultConfig()
	config.Epochs = context.GetParamOr(ctx, ParamNumEpochs, config.Epochs)
	config.BatchSize = context.GetParamOr(ctx, ParamBatchSize, config.BatchSize)
	config.EvalBatchSize = context.GetParamOr(ctx, ParamEvalBatchSize, config.EvalBatchSize)
	config.ValidationSplit = context.GetParamOr(ctx, ParamValidationSplit, config.ValidationSplit)
	config.Seed = int64(context.GetParamOr(ctx, ParamSeed, int(config.Seed)))
	config.Hyperparameters = model.HyperparametersFromContext(ctx)
	return config
}

// Validate returns an error if the configuration can't be used.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return errors.Errorf("number of epochs must be > 0, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be > 0, got %d", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return errors.Errorf("validation split must be in [0, 1), got %g", c.ValidationSplit)
	}
	return nil
}

// Runner trains and evaluates the model once per optimizer.
type Runner struct {
	Backend backends.Backend
	Config  Config

	// Out receives the human-readable progress. Defaults to os.Stdout.
	Out io.Writer
}

// NewRunner creates a Runner printing to os.Stdout.
func NewRunner(backend backends.Backend, config Config) *Runner {
	return &Runner{Backend: backend, Config: config, Out: os.Stdout}
}

// runDatasets are shared by all optimizers: the model changes, the data doesn't.
// The training batches are created per optimizer, see trainDataset.
type runDatasets struct {
	fit              cifar.RawImages
	validation, test *datasets.InMemoryDataset
}

// Run trains one fresh model per optimizer, in the given order, and evaluates each on the test split.
//
// It returns one Result per optimizer and the training history of the last one.
// Any failure aborts the whole run: there are no partial results.
func (r *Runner) Run(split *cifar.Split, optimizerConfigs []OptimizerConfig) (*Results, History, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, nil, err
	}
	if err := checkOptimizerNames(optimizerConfigs); err != nil {
		return nil, nil, err
	}
	if err := split.Validate(); err != nil {
		return nil, nil, err
	}
	if r.Out == nil {
		r.Out = os.Stdout
	}
	ds, err := r.createDatasets(split)
	if err != nil {
		return nil, nil, err
	}
	seed := r.Config.Seed
	for seed == 0 {
		seed = rand.Int63()
	}
	klog.V(1).Infof("Seed: %d", seed)

	results := NewResults()
	var history History
	for _, optConfig := range optimizerConfigs {
		var result Result
		result, history, err = r.runOptimizer(optConfig, ds, seed)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "optimizer %q", optConfig.Name)
		}
		if err = results.Record(result); err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(r.Out, "%s: test accuracy %.4f (test loss %.4f)\n",
			result.Optimizer, result.TestAccuracy, result.TestLoss)
	}
	return results, history, nil
}

func (r *Runner) createDatasets(split *cifar.Split) (ds runDatasets, err error) {
	fitImages, validationImages, err := cifar.SplitValidation(split.Train, r.Config.ValidationSplit)
	if err != nil {
		return
	}
	klog.V(1).Infof("Fitting on %d examples, validating on %d, testing on %d",
		fitImages.Count(), validationImages.Count(), split.Test.Count())
	evalBatchSize := r.Config.EvalBatchSize
	if evalBatchSize <= 0 {
		evalBatchSize = r.Config.BatchSize
	}

	if fitImages.Count() == 0 {
		return ds, errors.New("no training examples left after holding out the validation data")
	}
	ds.fit = fitImages
	if validationImages.Count() > 0 {
		ds.validation, err = cifar.NewDataset(r.Backend, "validation", validationImages)
		if err != nil {
			return
		}
		ds.validation.BatchSize(evalBatchSize, false)
	}
	ds.test, err = cifar.NewDataset(r.Backend, "test", split.Test)
	if err != nil {
		return
	}
	ds.test.BatchSize(evalBatchSize, false)
	return
}

// trainDataset returns the training batches, shuffled at every epoch by a generator seeded with seed.
func (r *Runner) trainDataset(fit cifar.RawImages, seed int64) (*cifar.Batches, error) {
	return cifar.NewBatches("train", fit, r.Config.BatchSize, rand.New(rand.NewSource(seed)))
}

// runOptimizer trains a freshly initialized model with the given optimizer and evaluates it on the test split.
// Everything random (initialization, dropout, example order) derives from seed, so the result doesn't depend on
// which optimizers ran before.
func (r *Runner) runOptimizer(optConfig OptimizerConfig, ds runDatasets, seed int64) (result Result, history History, err error) {
	optimizer, err := optConfig.Build()
	if err != nil {
		return
	}
	klog.V(1).Infof("Training with optimizer %s", optConfig)

	trainDS, err := r.trainDataset(ds.fit, seed)
	if err != nil {
		return
	}
	ctx := context.New()
	if err = ctx.SetRNGStateFromSeed(seed); err != nil {
		return
	}

	trainAccuracy := metrics.NewSparseCategoricalAccuracy("Train Accuracy", "#acc")
	evalAccuracy := metrics.NewSparseCategoricalAccuracy("Accuracy", "acc")
	panicErr := exceptions.TryCatch[error](func() {
		trainer := train.NewTrainer(r.Backend, ctx.In("model"), model.New(r.Config.Hyperparameters),
			losses.SparseCategoricalCrossEntropyLogits,
			optimizer,
			[]metrics.Interface{trainAccuracy},
			[]metrics.Interface{evalAccuracy})
		loop := train.NewLoop(trainer)
		if r.Config.Verbosity >= 1 {
			commandline.AttachProgressBar(loop)
		}
		history, err = r.fit(optConfig.Name, trainer, loop, trainDS, ds.validation)
		if err != nil {
			return
		}
		result, err = evaluate(optConfig.Name, trainer, ds.test)
	})
	if panicErr != nil {
		err = panicErr
	}
	return
}

// fit runs the configured number of epochs, measuring train and validation accuracy after each one.
func (r *Runner) fit(name string, trainer *train.Trainer, loop *train.Loop,
	trainDS train.Dataset, validationDS *datasets.InMemoryDataset) (History, error) {
	history := make(History, 0, r.Config.Epochs)
	accuracyIdx, err := metricIndex(trainer.TrainMetrics(), metrics.AccuracyMetricType)
	if err != nil {
		return nil, err
	}
	for epoch := 1; epoch <= r.Config.Epochs; epoch++ {
		trainMetrics, err := loop.RunEpochs(trainDS, 1)
		if err != nil {
			return nil, errors.WithMessagef(err, "epoch %d", epoch)
		}
		entry := EpochMetrics{Epoch: epoch, ValidationAccuracy: math.NaN()}
		entry.TrainAccuracy, err = scalarValue(trainMetrics[accuracyIdx])
		if err != nil {
			return nil, err
		}
		if validationDS != nil {
			_, entry.ValidationAccuracy, err = evalLossAndAccuracy(trainer, validationDS)
			if err != nil {
				return nil, errors.WithMessagef(err, "validation after epoch %d", epoch)
			}
		}
		history = append(history, entry)
		fmt.Fprintf(r.Out, "[%s] epoch %d/%d: train accuracy %.4f, validation accuracy %.4f\n",
			name, epoch, r.Config.Epochs, entry.TrainAccuracy, entry.ValidationAccuracy)
	}
	return history, nil
}

func evaluate(name string, trainer *train.Trainer, testDS *datasets.InMemoryDataset) (Result, error) {
	loss, accuracy, err := evalLossAndAccuracy(trainer, testDS)
	if err != nil {
		return Result{}, errors.WithMessage(err, "evaluating on test split")
	}
	return Result{Optimizer: name, TestLoss: loss, TestAccuracy: accuracy}, nil
}

// evalLossAndAccuracy evaluates the trainer's model over the whole dataset.
// The loss is NaN if the trainer doesn't report it.
func evalLossAndAccuracy(trainer *train.Trainer, ds *datasets.InMemoryDataset) (loss, accuracy float64, err error) {
	ds.Reset()
	values, err := trainer.Eval(ds)
	if err != nil {
		return
	}
	ds.Reset()
	evalMetrics := trainer.EvalMetrics()
	accuracyIdx, err := metricIndex(evalMetrics, metrics.AccuracyMetricType)
	if err != nil {
		return
	}
	if accuracy, err = scalarValue(values[accuracyIdx]); err != nil {
		return
	}
	loss = math.NaN()
	if lossIdx, lossErr := metricIndex(evalMetrics, metrics.LossMetricType); lossErr == nil {
		loss, err = scalarValue(values[lossIdx])
	}
	return
}

// metricIndex returns the position of the first metric of the given type.
func metricIndex(metricsList []metrics.Interface, metricType string) (int, error) {
	for ii, m := range metricsList {
		if m.MetricType() == metricType {
			return ii, nil
		}
	}
	return -1, errors.Errorf("no metric of type %q found", metricType)
}

// scalarValue converts a scalar float metric to float64.
func scalarValue(t *tensors.Tensor) (float64, error) {
	switch v := t.Value().(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, errors.Errorf("expected a scalar float metric, got shape %s", t.Shape())
}
