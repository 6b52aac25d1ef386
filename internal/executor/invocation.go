package executor

import (
	"runtime"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// Invocation is how a language's script file is launched. An empty Command
// runs the script file itself.
type Invocation struct {
	Command string   `mapstructure:"command" json:"command"`
	Args    []string `mapstructure:"args" json:"args"`
}

// DefaultInvocations returns the built-in language table
func DefaultInvocations() map[model.Language]Invocation {
	python := "python3"
	if runtime.GOOS == "windows" {
		python = "python"
	}

	return map[model.Language]Invocation{
		model.LanguagePowerShell: {
			Command: "powershell",
			Args:    []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File"},
		},
		model.LanguageBatch:  {},
		model.LanguagePython: {Command: python},
	}
}

// commandLine appends the script path to the invocation
func (i Invocation) commandLine(scriptPath string) (string, []string) {
	if i.Command == "" {
		return scriptPath, nil
	}
	args := make([]string, 0, len(i.Args)+1)
	args = append(args, i.Args...)
	args = append(args, scriptPath)
	return i.Command, args
}
