// internal/ui/prompt.go
package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"prismflow/internal/style"
	"prismflow/internal/validation"
)

// ErrDeclined is returned when the user refuses to overwrite the output
var ErrDeclined = errors.New("cancelled by user")

// Prompter asks the user for missing values
type Prompter interface {
	PromptForString(label string, defaultValue string, validator func(string) error) (string, error)
	PromptForSelect(label string, items []string) (string, error)
	PromptForConfirm(label string) (bool, error)
}

// Terminal prompts on the controlling terminal with promptui
type Terminal struct{}

func (Terminal) PromptForString(label string, defaultValue string, validator func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validator,
	}
	return prompt.Run()
}

func (Terminal) PromptForSelect(label string, items []string) (string, error) {
	sel := promptui.Select{Label: label, Items: items}
	_, value, err := sel.Run()
	return value, err
}

func (Terminal) PromptForConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Prompt labels
const (
	InputLabel     = "Input video path"
	ModeLabel      = "Processing mode"
	OutputLabel    = "Output video path"
	OverwriteLabel = "Output exists, overwrite"
)

// Selection is what the user asked for. Zero fields are prompted for.
type Selection struct {
	InputPath  string
	OutputPath string
	Mode       string
}

// Resolved is a Selection with every field filled and checked
type Resolved struct {
	InputPath  string
	OutputPath string
	Mode       style.ProcessingMode
}

// Complete fills the missing parts of sel through p and validates the rest
func Complete(p Prompter, sel Selection) (*Resolved, error) {
	input := sel.InputPath
	if input == "" {
		value, err := p.PromptForString(InputLabel, "", validation.ValidateInputPath)
		if err != nil {
			return nil, err
		}
		input = value
	}
	if err := validation.ValidateInputPath(input); err != nil {
		return nil, err
	}
	resolved := &Resolved{InputPath: validation.CleanPath(input)}

	modeName := sel.Mode
	if modeName == "" {
		modes := style.ProcessingModes()
		labels := make([]string, len(modes))
		for i, m := range modes {
			labels[i] = m.Label()
		}
		value, err := p.PromptForSelect(ModeLabel, labels)
		if err != nil {
			return nil, err
		}
		modeName = value
	}
	mode, err := style.ParseProcessingMode(modeName)
	if err != nil {
		return nil, err
	}
	resolved.Mode = mode

	output := sel.OutputPath
	if output == "" {
		value, err := p.PromptForString(OutputLabel, validation.DefaultOutputPath(resolved.InputPath), validation.ValidateOutputPath)
		if err != nil {
			return nil, err
		}
		output = value
	}
	output = validation.ResolveOutputPath(output, resolved.InputPath)
	if err := validation.ValidateOutputPath(output); err != nil {
		return nil, err
	}
	if output == resolved.InputPath {
		return nil, fmt.Errorf("output would overwrite the input video")
	}
	if _, err := os.Stat(output); err == nil && sel.OutputPath == "" {
		ok, err := p.PromptForConfirm(OverwriteLabel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDeclined
		}
	}
	resolved.OutputPath = output

	return resolved, nil
}
