// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package historyplot draws the train and validation accuracy per epoch of a training run.
//
// SavePNG renders a static image with gonum/plot, SaveHTML an interactive Plotly page.
package historyplot

import (
	"encoding/base64"
	"encoding/json"
	"html/template"
	"io"
	"math"
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/janpfeifer/gonb/gonbui/plotly"
	"github.com/optbench/cifaropt/experiment"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// Names of the plotted series.
const (
	TrainSeries      = "train accuracy"
	ValidationSeries = "validation accuracy"
)

// Series holds the points of one line. NaN values are left out.
type Series struct {
	Name           string
	Epochs, Values []float64
}

// FromHistory extracts the train and validation accuracy series. The validation series is omitted
// if it was never measured.
func FromHistory(history experiment.History) []Series {
	trainSeries := Series{Name: TrainSeries}
	validationSeries := Series{Name: ValidationSeries}
	for _, entry := range history {
		trainSeries.add(entry.Epoch, entry.TrainAccuracy)
		validationSeries.add(entry.Epoch, entry.ValidationAccuracy)
	}
	series := []Series{trainSeries}
	if len(validationSeries.Values) > 0 {
		series = append(series, validationSeries)
	}
	return series
}

func (s *Series) add(epoch int, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	s.Epochs = append(s.Epochs, float64(epoch))
	s.Values = append(s.Values, value)
}

func (s Series) xys() plotter.XYs {
	xys := make(plotter.XYs, len(s.Values))
	for ii := range xys {
		xys[ii].X = s.Epochs[ii]
		xys[ii].Y = s.Values[ii]
	}
	return xys
}

func checkHistory(history experiment.History) error {
	if len(history) == 0 {
		return errors.New("empty training history, nothing to plot")
	}
	return nil
}

// SavePNG plots the history to the given PNG (or any other format gonum/plot infers from the extension) file.
func SavePNG(filePath, title string, history experiment.History) error {
	if err := checkHistory(history); err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "accuracy"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	var lines []any
	for _, series := range FromHistory(history) {
		lines = append(lines, series.Name, series.xys())
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "failed to plot training history")
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	klog.V(1).Infof("Training history plot saved to %q", filePath)
	return nil
}

// Figure returns the Plotly figure of the history.
func Figure(title string, history experiment.History) *grob.Fig {
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(title),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
				Title:    &grob.LayoutXaxisTitle{Text: ptypes.S("epoch")},
			},
			Yaxis: &grob.LayoutYaxis{
				Showgrid: ptypes.B(true),
				Title:    &grob.LayoutYaxisTitle{Text: ptypes.S("accuracy")},
			},
		},
	}
	for _, series := range FromHistory(history) {
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(series.Name),
			Line: &grob.ScatterLine{
				Shape: grob.ScatterLineShapeLinear,
			},
			Mode: "lines+markers",
			X:    ptypes.DataArray(series.Epochs),
			Y:    ptypes.DataArray(series.Values),
		})
	}
	return fig
}

var htmlTmpl = template.Must(template.New("history").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<title>{{ .Title }}</title>
		<script src="{{ .CDN }}"></script>
	</head>
	<body>
		<div id="history"></div>
		<script>
		fig = JSON.parse(atob('{{ .Figure }}'))
		Plotly.newPlot('history', fig);
		</script>
	</body>
</html>
`))

// WriteHTML renders the history as a self-contained HTML page, loading Plotly from its CDN.
func WriteHTML(w io.Writer, title string, history experiment.History) error {
	if err := checkHistory(history); err != nil {
		return err
	}
	figAsJSON, err := json.Marshal(Figure(title, history))
	if err != nil {
		return errors.Wrap(err, "failed to marshal plotly figure")
	}
	data := &struct {
		Title, CDN, Figure string
	}{
		Title:  title,
		CDN:    plotly.PlotlySrc,
		Figure: base64.StdEncoding.EncodeToString(figAsJSON),
	}
	if err = htmlTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render plotly page")
	}
	return nil
}

// SaveHTML writes WriteHTML's page to the given file.
func SaveHTML(filePath, title string, history experiment.History) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", filePath)
	}
	defer fsutil.ReportedClose(f, filePath, &err)
	if err = WriteHTML(f, title, history); err != nil {
		return
	}
	klog.V(1).Infof("Training history page saved to %q", filePath)
	return
}
