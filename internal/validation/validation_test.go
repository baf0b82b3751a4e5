package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prismflow/internal/video"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	return path
}

func TestValidateInputPath(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "clip.mp4", 128)
	upper := writeFile(t, dir, "CLIP.MOV", 128)
	empty := writeFile(t, dir, "empty.mkv", 0)
	gif := writeFile(t, dir, "anim.gif", 128)

	tests := []struct {
		name      string
		input     string
		errorType string
	}{
		{name: "Valid file", input: valid},
		{name: "Quoted path", input: "'" + valid + "'"},
		{name: "Double quoted with spaces", input: `  "` + valid + `"  `},
		{name: "Uppercase extension", input: upper},
		{name: "Empty", input: "   ", errorType: "cannot be empty"},
		{name: "Traversal", input: dir + "/../clip.mp4", errorType: "directory traversal"},
		{name: "Missing", input: filepath.Join(dir, "missing.mp4"), errorType: "does not exist"},
		{name: "Directory", input: dir, errorType: "directory"},
		{name: "Unsupported format", input: gif, errorType: "unsupported file format"},
		{name: "Empty file", input: empty, errorType: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputPath(tt.input)
			if tt.errorType == "" {
				if err != nil {
					t.Errorf("Expected no error for %q, got: %v", tt.input, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error for %q, got nil", tt.input)
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.errorType) {
				t.Errorf("Expected error containing %q, got: %v", tt.errorType, err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	dir := t.TempDir()
	existing := writeFile(t, dir, "old.mp4", 16)

	tests := []struct {
		name      string
		output    string
		errorType string
	}{
		{name: "New file", output: filepath.Join(dir, "styled.mp4")},
		{name: "Overwrite", output: existing},
		{name: "Uppercase extension", output: filepath.Join(dir, "STYLED.MP4")},
		{name: "Empty", output: "", errorType: "cannot be empty"},
		{name: "Wrong container", output: filepath.Join(dir, "styled.gif"), errorType: ".mp4"},
		{name: "Missing directory", output: filepath.Join(dir, "nope", "styled.mp4"), errorType: "does not exist"},
		{name: "Existing directory", output: dir, errorType: "directory"},
		{name: "Traversal", output: dir + "/../styled.mp4", errorType: "directory traversal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputPath(tt.output)
			if tt.errorType == "" {
				if err != nil {
					t.Errorf("Expected no error for %q, got: %v", tt.output, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error for %q, got nil", tt.output)
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.errorType) {
				t.Errorf("Expected error containing %q, got: %v", tt.errorType, err)
			}
		})
	}
}

func TestOutputPathResolution(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "holiday.mov")

	if got, want := DefaultOutputPath(input), filepath.Join(dir, "holiday_styled.mp4"); got != want {
		t.Errorf("DefaultOutputPath = %q, want %q", got, want)
	}

	outDir := filepath.Join(dir, "renders")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	if got, want := ResolveOutputPath(outDir, input), filepath.Join(outDir, "holiday_styled.mp4"); got != want {
		t.Errorf("ResolveOutputPath(dir) = %q, want %q", got, want)
	}

	file := filepath.Join(dir, "custom.mp4")
	if got := ResolveOutputPath("'"+file+"'", input); got != file {
		t.Errorf("ResolveOutputPath(file) = %q, want %q", got, file)
	}
}

func TestValidateInputVideo(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, dir, "clip.mp4", 64)

	tests := []struct {
		name     string
		info     *video.VideoInfo
		probeErr error
		wantErr  bool
		warnings int
	}{
		{name: "Healthy", info: &video.VideoInfo{Width: 640, Height: 360, FPS: 30, FrameCount: 90}},
		{name: "Long video", info: &video.VideoInfo{Width: 640, Height: 360, FPS: 30, FrameCount: 9000}, warnings: 1},
		{name: "Unknown rate", info: &video.VideoInfo{Width: 640, Height: 360}, warnings: 1},
		{name: "No dimensions", info: &video.VideoInfo{FPS: 30}, wantErr: true},
		{name: "Probe failure", probeErr: errors.New("moov atom not found"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := func(path string) (*video.VideoInfo, error) {
				if path != clip {
					t.Errorf("probe called with %q, want %q", path, clip)
				}
				return tt.info, tt.probeErr
			}

			result, err := ValidateInputVideo(clip, probe)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if result.IsValid || len(result.Errors) == 0 {
					t.Errorf("Expected invalid result with errors, got %+v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !result.IsValid {
				t.Errorf("Expected valid result")
			}
			if len(result.Warnings) != tt.warnings {
				t.Errorf("Expected %d warnings, got %v", tt.warnings, result.Warnings)
			}
		})
	}
}

func TestValidateInputVideoSkipsProbeOnBadPath(t *testing.T) {
	called := false
	probe := func(string) (*video.VideoInfo, error) {
		called = true
		return nil, nil
	}
	if _, err := ValidateInputVideo(filepath.Join(t.TempDir(), "missing.mp4"), probe); err == nil {
		t.Error("Expected error for missing file")
	}
	if called {
		t.Error("probe should not run when the path is invalid")
	}
}

func TestValidatePathSecurity(t *testing.T) {
	if err := validatePathSecurity(filepath.Join(t.TempDir(), "out.mp4")); err != nil {
		t.Errorf("temp dir rejected: %v", err)
	}
	system := getSystemDirectories()[0]
	if err := validatePathSecurity(filepath.Join(system, "out.mp4")); err == nil {
		t.Errorf("expected %s to be rejected", system)
	}
	if err := validatePathSecurity("/" + strings.Repeat("a", getMaxPathLength())); err == nil {
		t.Error("expected overlong path to be rejected")
	}
}

func TestValidatePathCharacters(t *testing.T) {
	if err := validatePathCharacters("/tmp/clip\x00.mp4"); err == nil {
		t.Error("expected null byte to be rejected")
	}
	if err := validatePathCharacters("/tmp/clip.mp4"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
