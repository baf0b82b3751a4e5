// internal/ui/ui.go
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"prismflow/internal/pipeline"
	"prismflow/internal/stabilize"
	"prismflow/internal/style"
	"prismflow/internal/video"
)

var (
	infoStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827"))

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)
)

type row struct {
	label string
	value string
}

func renderRows(rows []row) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%s %s", labelStyle.Render(r.label), valueStyle.Render(r.value))
	}
	return infoStyle.Render(strings.Join(lines, "\n"))
}

// RenderVideoInfo formats probed input facts as a bordered panel
func RenderVideoInfo(info *video.VideoInfo) string {
	frames := "Unknown"
	if info.FrameCount > 0 {
		frames = fmt.Sprintf("%d", info.FrameCount)
	}
	return renderRows([]row{
		{"📁 File:", filepath.Base(info.Filepath)},
		{"📊 Size:", FormatFileSize(info.FileSize)},
		{"📐 Dimensions:", fmt.Sprintf("%dx%d", info.Width, info.Height)},
		{"🎬 Format:", info.Format},
		{"⚡ Bitrate:", formatBitrate(info.Bitrate)},
		{"🎞️  Frame rate:", formatFPS(info.FPS)},
		{"🔢 Frames:", frames},
		{"⏱️  Duration:", FormatDuration(info.Duration)},
	})
}

func DisplayVideoInfo(info *video.VideoInfo) {
	fmt.Println(RenderVideoInfo(info))
}

// RenderRunSummary formats the per-mode and per-flow-status frame counts
func RenderRunSummary(result *pipeline.Result) string {
	rows := []row{
		{"🆔 Run:", result.RunID},
		{"💾 Output:", result.OutputPath},
		{"🖼️  Frames:", fmt.Sprintf("%d", result.FramesProcessed)},
		{"⏱️  Time:", formatElapsed(result.ProcessingTime)},
	}
	if result.FramesProcessed > 0 && result.ProcessingTime > 0 {
		perFrame := result.ProcessingTime / time.Duration(result.FramesProcessed)
		rows = append(rows, row{"🐢 Per frame:", formatElapsed(perFrame)})
	}

	var modes []string
	for _, m := range []style.Mode{style.Full, style.Masked, style.Img2Img} {
		if n := result.ModeCounts[m]; n > 0 {
			modes = append(modes, fmt.Sprintf("%s %d", m, n))
		}
	}
	if len(modes) > 0 {
		rows = append(rows, row{"🎨 Modes:", strings.Join(modes, ", ")})
	}

	var flows []string
	for _, s := range stabilize.FlowStatuses() {
		if n := result.FlowCounts[s]; n > 0 {
			flows = append(flows, fmt.Sprintf("%s %d", s, n))
		}
	}
	if len(flows) > 0 {
		rows = append(rows, row{"🌊 Flow:", strings.Join(flows, ", ")})
	}
	if result.FlowDisabled {
		rows = append(rows, row{"⚠️  Note:", "optical flow model unavailable, frames regenerated in full"})
	}
	if result.FramesDir != "" {
		rows = append(rows, row{"📂 Frames dir:", result.FramesDir})
	}
	return renderRows(rows)
}

func DisplayRunSummary(result *pipeline.Result) {
	fmt.Println(RenderRunSummary(result))
}

// FormatFileSize converts bytes to human-readable format
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration converts seconds to MM:SS format
func FormatDuration(seconds float64) string {
	totalSeconds := int(seconds)
	minutes := totalSeconds / 60
	remainingSeconds := totalSeconds % 60

	return fmt.Sprintf("%02d:%02d", minutes, remainingSeconds)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatFPS(fps float64) string {
	if fps <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.2f fps", fps)
}

func formatBitrate(bitrate int64) string {
	if bitrate == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.1f kbps", float64(bitrate)/1000)
}
