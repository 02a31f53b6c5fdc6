// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	reportCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	reportHeaderStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true)
	reportBorderColor = lipgloss.Color("240")
)

// Report writes a table with every optimizer's test loss and accuracy, followed by the best optimizer.
func Report(w io.Writer, results *Results) error {
	best, err := results.Best()
	if err != nil {
		return err
	}
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(reportBorderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return reportHeaderStyle
			}
			return reportCellStyle
		}).
		Headers("Optimizer", "Test Loss", "Test Accuracy")
	for _, result := range results.All() {
		table.Row(result.Optimizer, fmt.Sprintf("%.4f", result.TestLoss), fmt.Sprintf("%.2f%%", 100*result.TestAccuracy))
	}
	if _, err = fmt.Fprintln(w, table.Render()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Best optimizer: %s (test accuracy %.2f%%)\n", best.Optimizer, 100*best.TestAccuracy)
	return err
}
