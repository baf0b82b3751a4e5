// internal/video/info.go
package video

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type VideoInfo struct {
	Filepath   string
	FileSize   int64
	Width      int
	Height     int
	Duration   float64
	Format     string
	Codec      string
	Bitrate    int64
	FPS        float64
	FrameCount int // from the container, or estimated from duration*fps
}

type FFProbeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Duration   string `json:"duration"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		RFrameRate string `json:"r_frame_rate"`
		AvgRate    string `json:"avg_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Bitrate  string `json:"bit_rate"`
		Format   string `json:"format_name"`
	} `json:"format"`
}

func GetVideoInfo(filepath string) (*VideoInfo, error) {
	// Get file size
	fileInfo, err := os.Stat(filepath)
	if err != nil {
		return nil, err
	}

	output, err := ffmpeg.Probe(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to run ffprobe: %v", err)
	}

	info, err := ParseProbe([]byte(output))
	if err != nil {
		return nil, err
	}
	info.Filepath = filepath
	info.FileSize = fileInfo.Size()
	return info, nil
}

// ParseProbe extracts stream and container facts from ffprobe JSON
func ParseProbe(output []byte) (*VideoInfo, error) {
	var probe FFProbeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %v", err)
	}

	info := &VideoInfo{Format: probe.Format.Format}

	// Find video stream
	found := false
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		found = true
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		info.FPS = ParseFrameRate(stream.RFrameRate)
		if info.FPS == 0 {
			info.FPS = ParseFrameRate(stream.AvgRate)
		}
		if n, err := strconv.Atoi(stream.NbFrames); err == nil {
			info.FrameCount = n
		}
		if probe.Format.Duration == "" && stream.Duration != "" {
			probe.Format.Duration = stream.Duration
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("no video stream found")
	}

	// Parse duration
	if probe.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = duration
		}
	}

	// Parse bitrate
	if probe.Format.Bitrate != "" {
		if bitrate, err := strconv.ParseInt(probe.Format.Bitrate, 10, 64); err == nil {
			info.Bitrate = bitrate
		}
	}

	if info.FrameCount == 0 && info.Duration > 0 && info.FPS > 0 {
		info.FrameCount = int(info.Duration*info.FPS + 0.5)
	}

	return info, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25". Unknown
// or zero-denominator rates parse as 0.
func ParseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
