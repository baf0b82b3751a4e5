// internal/ui/progress.go
package ui

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"prismflow/internal/pipeline"
)

// NewProgressBar builds the styling progress bar. A total of zero or less
// renders a spinner.
func NewProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Styling"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { io.WriteString(w, "\n") }),
	)
}

// ProgressCallback drives bar from pipeline progress reports
func ProgressCallback(bar *progressbar.ProgressBar) pipeline.ProgressCallback {
	return func(current, total int, message string) {
		if total > 0 && bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		bar.Describe(message)
		bar.Set(current)
	}
}
