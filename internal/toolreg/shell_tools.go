package toolreg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// ShellTools runs the one shell_exec tool. By the time Dispatch reaches
// it, the Hook Pipeline's PRE stages have already run the command
// through the Security Gate, Risk Classifier, and Autonomy Manager —
// this handler trusts that and just runs the command.
type ShellTools struct {
	projectRoot string
	timeout     time.Duration
}

// NewShellTools confines shell_exec's working directory to projectRoot.
// A zero timeout defaults to five minutes.
func NewShellTools(projectRoot string, timeout time.Duration) *ShellTools {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ShellTools{projectRoot: projectRoot, timeout: timeout}
}

// RegisterAll adds shell_exec to r.
func (st *ShellTools) RegisterAll(r *Registry) error {
	return r.Register("shell_exec", "Run a shell command in the project directory.", []byte(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`), st.exec)
}

func (st *ShellTools) exec(ctx context.Context, input map[string]any) (map[string]any, error) {
	command, err := requireString(input, "command")
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	cmd := exec.CommandContext(runCtx, shell, flag, command)
	cmd.Dir = st.projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run command: %w", runErr)
		}
	}

	return map[string]any{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}
