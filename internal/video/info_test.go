package video

import (
	"math"
	"testing"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "r_frame_rate": "30000/1001",
      "avg_frame_rate": "30000/1001",
      "nb_frames": "300",
      "duration": "10.010000"
    }
  ],
  "format": {"duration": "10.010000", "bit_rate": "4500000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParseProbe(t *testing.T) {
	info, err := ParseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("ParseProbe: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.Codec != "h264" {
		t.Errorf("codec = %q, want h264", info.Codec)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Errorf("fps = %v, want ~29.97", info.FPS)
	}
	if info.FrameCount != 300 {
		t.Errorf("frame count = %d, want 300", info.FrameCount)
	}
	if info.Bitrate != 4500000 {
		t.Errorf("bitrate = %d, want 4500000", info.Bitrate)
	}
	if math.Abs(info.Duration-10.01) > 1e-9 {
		t.Errorf("duration = %v, want 10.01", info.Duration)
	}
}

func TestParseProbeEstimatesFrameCount(t *testing.T) {
	input := `{"streams":[{"codec_type":"video","width":640,"height":360,"r_frame_rate":"25/1","nb_frames":"N/A"}],
	"format":{"duration":"4.0","format_name":"matroska,webm"}}`
	info, err := ParseProbe([]byte(input))
	if err != nil {
		t.Fatalf("ParseProbe: %v", err)
	}
	if info.FrameCount != 100 {
		t.Errorf("frame count = %d, want 100", info.FrameCount)
	}
}

func TestParseProbeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: `{"streams": [`},
		{name: "audio only", input: `{"streams":[{"codec_type":"audio"}],"format":{}}`},
		{name: "no streams", input: `{"format":{"duration":"1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProbe([]byte(tt.input)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		rate string
		want float64
	}{
		{"30000/1001", 30000.0 / 1001.0},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.rate); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestGetVideoInfoMissingFile(t *testing.T) {
	if _, err := GetVideoInfo("/nonexistent/clip.mp4"); err == nil {
		t.Errorf("expected error for missing file")
	}
}
