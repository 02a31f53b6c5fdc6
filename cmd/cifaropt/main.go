// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// cifaropt trains the same CNN on CIFAR-10 once per optimizer (SGD, Adam and RMSprop by default),
// reports the test accuracy of each and which one was best, and plots the training history.
//
// Hyperparameters can be changed with -set, e.g.:
//
//	cifaropt -set="num_epochs=3;batch_size=128;cnn_dropout_rate=0.3" -plot=history.png
//
// The backend is selected with the GOMLX_BACKEND environment variable.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/optbench/cifaropt/cifar"
	"github.com/optbench/cifaropt/experiment"
	"github.com/optbench/cifaropt/historyplot"
	"github.com/optbench/cifaropt/model"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagDataDir    = flag.String("data", "~/work/cifar", "Directory to cache the downloaded CIFAR-10 dataset.")
	flagPlot       = flag.String("plot", "cifaropt_history.png", "PNG file where to plot the training history of the last optimizer. Empty to disable.")
	flagPlotHTML   = flag.String("plot_html", "", "If set, HTML file where to save an interactive Plotly version of the training history plot.")
	flagOptimizers = flag.String("optimizers", experiment.FormatOptimizers(experiment.DefaultOptimizers()),
		"Comma separated list of optimizers to compare, in training order, each formatted as \"name=algorithm:learning_rate[:epsilon]\". "+
			"Algorithms: sgd, adam or rmsprop.")
	flagSynthetic = flag.Int("synthetic", 0, "If > 0, instead of CIFAR-10 use this many random training examples (and a fifth as many test examples).")
	flagVerbosity = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

// createDefaultContext sets the context with default hyperparameters.
func createDefaultContext() *context.Context {
	ctx := context.New()
	config := experiment.DefaultConfig()
	hp := config.Hyperparameters
	ctx.SetParams(map[string]any{
		experiment.ParamNumEpochs: config.Epochs,

		// batch_size for training.
		experiment.ParamBatchSize: config.BatchSize,

		// eval_batch_size can be larger than training, it's more efficient.
		experiment.ParamEvalBatchSize: config.EvalBatchSize,

		// Fraction of the training data held out for the per-epoch validation accuracy.
		experiment.ParamValidationSplit: config.ValidationSplit,

		// 0 means a random seed.
		experiment.ParamSeed: 0,

		// CNN
		model.ParamNumFilters:  hp.Filters,
		model.ParamKernelSize:  hp.KernelSize[0],
		model.ParamDropoutRate: hp.DropoutRate,
	})
	return ctx
}

func main() {
	// Flags with context settings.
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	_ = must.M1(commandline.ParseContextSettings(ctx, *settings))

	optimizerConfigs, err := experiment.ParseOptimizers(*flagOptimizers)
	if err != nil {
		klog.Fatalf("Invalid -optimizers: %+v", err)
	}
	provider, err := createProvider()
	if err != nil {
		klog.Fatalf("Failed to prepare dataset: %+v", err)
	}
	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}
	if *flagVerbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}
	if err = run(backend, ctx, provider, optimizerConfigs, os.Stdout); err != nil {
		klog.Fatalf("Failed: %+v", err)
	}
}

// createProvider returns the synthetic dataset if -synthetic is set, otherwise CIFAR-10.
// CIFAR-10 is downloaded by its Load, if needed.
func createProvider() (cifar.Provider, error) {
	if *flagSynthetic > 0 {
		return cifar.Synthetic{
			NumTrain: *flagSynthetic,
			NumTest:  max(*flagSynthetic/5, 1),
			Seed:     1,
		}, nil
	}
	dataDir, err := fsutil.ReplaceTildeInDir(*flagDataDir)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(dataDir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %q", dataDir)
	}
	return cifar.Cifar10{DataDir: dataDir}, nil
}

// run loads the dataset, trains one model per optimizer, reports the results and plots the history
// of the last optimizer trained.
func run(backend backends.Backend, ctx *context.Context, provider cifar.Provider,
	optimizerConfigs []experiment.OptimizerConfig, out io.Writer) error {
	split, err := provider.Load()
	if err != nil {
		return err
	}
	config := experiment.ConfigFromContext(ctx)
	config.Verbosity = *flagVerbosity
	runner := experiment.NewRunner(backend, config)
	runner.Out = out
	results, history, err := runner.Run(split, optimizerConfigs)
	if err != nil {
		return err
	}
	if err = results.CheckComplete(optimizerConfigs); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err = experiment.Report(out, results); err != nil {
		return err
	}

	title := fmt.Sprintf("%s training history", optimizerConfigs[len(optimizerConfigs)-1].Name)
	if *flagPlot != "" {
		if err = historyplot.SavePNG(*flagPlot, title, history); err != nil {
			return err
		}
		klog.Infof("Training history plotted to %q", *flagPlot)
	}
	if *flagPlotHTML != "" {
		if err = historyplot.SaveHTML(*flagPlotHTML, title, history); err != nil {
			return err
		}
		klog.Infof("Interactive training history saved to %q", *flagPlotHTML)
	}
	return nil
}
