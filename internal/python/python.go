// internal/python/python.go
package python

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Executor runs external commands. The model backends shell out through it
// so tests can substitute a recorder.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecExecutor runs commands with os/exec
type ExecExecutor struct{}

// Execute runs the command and returns its combined output
func (ExecExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], append(parts[1:], args...)...)
	return cmd.CombinedOutput()
}

var versionRegex = regexp.MustCompile(`Python 3\.(\d+)`)

// MinMinorVersion is the lowest supported Python 3 minor release
const MinMinorVersion = 8

// ParseVersion extracts the Python 3 minor version from `python --version` output
func ParseVersion(output string) (int, bool) {
	match := versionRegex.FindStringSubmatch(output)
	if len(match) < 2 {
		return 0, false
	}
	minor, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return minor, true
}

// DetectPythonPath attempts to find a suitable Python executable
func DetectPythonPath(ctx context.Context, executor Executor) string {
	candidates := []string{"python3", "python"}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, "py -3")
	}

	for _, candidate := range candidates {
		output, err := executor.Execute(ctx, candidate, "--version")
		if err != nil {
			continue
		}
		if minor, ok := ParseVersion(string(output)); ok && minor >= MinMinorVersion {
			return candidate
		}
	}
	return ""
}

// HasModules reports whether every module imports cleanly in the interpreter
func HasModules(ctx context.Context, executor Executor, pythonPath string, modules ...string) bool {
	if pythonPath == "" {
		return false
	}
	script := "print('OK')"
	if len(modules) > 0 {
		script = "import " + strings.Join(modules, ", ") + "; " + script
	}
	output, err := executor.Execute(ctx, pythonPath, "-c", script)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(output)) == "OK"
}

// CheckScript verifies the interpreter resolves and the script file exists
func CheckScript(pythonPath, scriptPath string) error {
	if pythonPath == "" {
		return fmt.Errorf("Python path is required")
	}
	// For compound commands like "py -3", just check the base command
	baseCmd := strings.Fields(pythonPath)[0]
	if _, err := exec.LookPath(baseCmd); err != nil {
		return fmt.Errorf("Python executable not found: %s", pythonPath)
	}
	if scriptPath == "" {
		return fmt.Errorf("script path is required")
	}
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		return fmt.Errorf("script not found: %s", scriptPath)
	}
	return nil
}
