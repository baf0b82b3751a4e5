// internal/validation/validation.go
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"prismflow/internal/video"
)

const (
	// Maximum input size in bytes (4GB)
	MaxFileSizeBytes = 4 * 1024 * 1024 * 1024

	// Frame count above which a warning is attached; every frame is a diffusion call
	LongVideoFrames = 3000

	// OutputExtension is the only container the encoder writes
	OutputExtension = ".mp4"
)

// SupportedInputFormats defines all supported input video formats
var SupportedInputFormats = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv", ".wmv"}

// FileValidationResult contains detailed validation results
type FileValidationResult struct {
	IsValid  bool
	Info     *video.VideoInfo
	Warnings []string
	Errors   []string
}

// getSystemDirectories returns platform-specific system directories to protect
func getSystemDirectories() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			"C:\\Windows",
			"C:\\Program Files",
			"C:\\Program Files (x86)",
			"C:\\ProgramData",
		}
	case "darwin":
		return []string{"/System", "/usr", "/bin", "/sbin", "/etc", "/private/etc", "/Applications"}
	default:
		return []string{"/etc", "/usr", "/bin", "/sbin", "/boot", "/sys", "/proc"}
	}
}

func getMaxPathLength() int {
	switch runtime.GOOS {
	case "windows":
		return 260
	case "linux":
		return 4096
	default:
		return 1024
	}
}

// normalizePathForComparison normalizes paths for cross-platform comparison
func normalizePathForComparison(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(filepath.Clean(path))
	}
	return filepath.Clean(path)
}

// CleanPath trims whitespace and surrounding quotes (as added by drag and
// drop from a file manager) and returns the absolute, cleaned path.
func CleanPath(input string) string {
	cleaned := stripQuotes(input)
	if absPath, err := filepath.Abs(cleaned); err == nil {
		return filepath.Clean(absPath)
	}
	return filepath.Clean(cleaned)
}

func stripQuotes(input string) string {
	cleaned := strings.TrimSpace(input)
	if len(cleaned) >= 2 {
		if (cleaned[0] == '\'' && cleaned[len(cleaned)-1] == '\'') ||
			(cleaned[0] == '"' && cleaned[len(cleaned)-1] == '"') {
			cleaned = cleaned[1 : len(cleaned)-1]
		}
	}
	return strings.TrimSpace(cleaned)
}

// ValidateInputPath checks that input names a readable video file of a
// supported format
func ValidateInputPath(input string) error {
	cleaned := stripQuotes(input)
	if cleaned == "" {
		return fmt.Errorf("path cannot be empty")
	}

	// Security: Check for directory traversal attempts
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("path cannot contain '..' (directory traversal)")
	}

	path := CleanPath(cleaned)
	if err := validatePathCharacters(path); err != nil {
		return err
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %v", err)
	}
	if fileInfo.IsDir() {
		return fmt.Errorf("path points to a directory, not a file: %s", path)
	}

	if !IsSupportedInput(path) {
		return fmt.Errorf("unsupported file format: %s. Supported formats: %s",
			strings.ToLower(filepath.Ext(path)), strings.Join(SupportedInputFormats, ", "))
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	if fileInfo.Size() > MaxFileSizeBytes {
		sizeMB := float64(fileInfo.Size()) / (1024 * 1024)
		return fmt.Errorf("file size (%.1f MB) exceeds maximum allowed size of %d MB", sizeMB, MaxFileSizeBytes/(1024*1024))
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read file (permission denied): %v", err)
	}
	file.Close()

	return nil
}

// IsSupportedInput reports whether path has a supported video extension
func IsSupportedInput(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedInputFormats {
		if ext == supported {
			return true
		}
	}
	return false
}

// ValidateInputVideo runs ValidateInputPath and then probes the stream
func ValidateInputVideo(input string, probe func(string) (*video.VideoInfo, error)) (*FileValidationResult, error) {
	result := &FileValidationResult{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}

	if err := ValidateInputPath(input); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}

	info, err := probe(CleanPath(input))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Content validation failed: %v", err))
		return result, fmt.Errorf("content validation failed: %v", err)
	}
	result.Info = info

	if info.Width <= 0 || info.Height <= 0 {
		result.Errors = append(result.Errors, "Video has no usable dimensions")
		return result, fmt.Errorf("video has invalid dimensions %dx%d", info.Width, info.Height)
	}
	if info.FPS <= 0 {
		result.Warnings = append(result.Warnings, "Frame rate unknown; set processing.fps")
	}
	if info.FrameCount > LongVideoFrames {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Video has %d frames - styling may take significant time", info.FrameCount))
	}

	result.IsValid = true
	return result, nil
}

// DefaultOutputPath names the styled output next to the input
func DefaultOutputPath(input string) string {
	path := CleanPath(input)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), base+"_styled"+OutputExtension)
}

// ResolveOutputPath turns an existing directory into a file inside it named
// after the input. Other paths are cleaned and returned as is.
func ResolveOutputPath(output, input string) string {
	path := CleanPath(output)
	if stat, err := os.Stat(path); err == nil && stat.IsDir() {
		return filepath.Join(path, filepath.Base(DefaultOutputPath(input)))
	}
	return path
}

// ValidateOutputPath checks that output can be written as an MP4 file
func ValidateOutputPath(output string) error {
	cleaned := stripQuotes(output)
	if cleaned == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("path cannot contain '..' (directory traversal)")
	}

	path := CleanPath(cleaned)
	if err := validatePathCharacters(path); err != nil {
		return err
	}

	if fileInfo, err := os.Stat(path); err == nil && fileInfo.IsDir() {
		return fmt.Errorf("output path points to an existing directory: %s", path)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != OutputExtension {
		return fmt.Errorf("output must be an %s file, got %q", OutputExtension, ext)
	}

	parentDir := filepath.Dir(path)
	if parentInfo, err := os.Stat(parentDir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", parentDir)
		}
		return fmt.Errorf("cannot access output directory: %v", err)
	} else if !parentInfo.IsDir() {
		return fmt.Errorf("output parent path is not a directory: %s", parentDir)
	}

	if err := checkWritePermission(parentDir); err != nil {
		return fmt.Errorf("cannot write to output directory: %v", err)
	}

	if err := validatePathSecurity(path); err != nil {
		return fmt.Errorf("security validation failed: %v", err)
	}

	return nil
}

// checkWritePermission tests if we can create a file in dir
func checkWritePermission(dir string) error {
	file, err := os.CreateTemp(dir, ".prismflow_write_test")
	if err != nil {
		return fmt.Errorf("no write permission: %v", err)
	}
	name := file.Name()
	file.Close()
	os.Remove(name)
	return nil
}

// validatePathSecurity performs additional security checks
func validatePathSecurity(path string) error {
	maxLen := getMaxPathLength()
	if len(path) > maxLen {
		return fmt.Errorf("path too long (max %d characters)", maxLen)
	}

	normalizedPath := normalizePathForComparison(path)
	for _, sysDir := range getSystemDirectories() {
		normalizedSysDir := normalizePathForComparison(sysDir)
		if normalizedPath == normalizedSysDir || strings.HasPrefix(normalizedPath, normalizedSysDir+string(filepath.Separator)) {
			return fmt.Errorf("cannot write to system directory: %s", sysDir)
		}
	}

	return nil
}

// validatePathCharacters checks for invalid characters based on OS
func validatePathCharacters(path string) error {
	if runtime.GOOS == "windows" {
		// Skip the drive letter colon
		rest := path
		if len(rest) >= 2 && rest[1] == ':' {
			rest = rest[2:]
		}
		for _, char := range []string{"<", ">", ":", "\"", "|", "?", "*"} {
			if strings.Contains(rest, char) {
				return fmt.Errorf("path contains invalid character: %s", char)
			}
		}

		baseName := strings.ToUpper(filepath.Base(path))
		if idx := strings.LastIndex(baseName, "."); idx != -1 {
			baseName = baseName[:idx]
		}
		reservedNames := []string{
			"CON", "PRN", "AUX", "NUL",
			"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
			"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
		}
		for _, reserved := range reservedNames {
			if baseName == reserved {
				return fmt.Errorf("path uses reserved Windows name: %s", reserved)
			}
		}
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null bytes")
	}

	return nil
}
