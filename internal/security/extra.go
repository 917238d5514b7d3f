package security

import (
	"fmt"
	"regexp"
	"strings"
)

var alwaysAllowedProcesses = map[string]bool{
	"vite": true, "next": true, "webpack": true, "esbuild": true, "parcel": true,
	"rollup": true, "tsc": true, "jest": true, "vitest": true, "playwright": true,
	"cypress": true, "uvicorn": true, "gunicorn": true, "flask": true, "django": true,
	"fastapi": true, "streamlit": true, "gradio": true,
}

var protectedProcesses = map[string]bool{
	"python": true, "python3": true, "python.exe": true, "python3.exe": true,
	"node": true, "node.exe": true,
}

// validatePkill allows killing named dev-server processes or killing a
// protected interpreter only when scoped to a specific script via -f.
func validatePkill(command string) Verdict {
	tokens, err := tokenize(command)
	if err != nil {
		return Verdict{Allowed: false, Reason: "could not parse pkill command"}
	}
	if len(tokens) == 0 {
		return Verdict{Allowed: false, Reason: "empty pkill command"}
	}

	hasF := false
	var args []string
	for _, t := range tokens[1:] {
		if t == "-f" {
			hasF = true
			continue
		}
		if !strings.HasPrefix(t, "-") {
			args = append(args, t)
		}
	}
	if len(args) == 0 {
		return Verdict{Allowed: false, Reason: "pkill requires a process name"}
	}

	target := args[len(args)-1]
	targetLower := strings.ToLower(target)

	if hasF && strings.Contains(target, " ") {
		parts := strings.Fields(target)
		base := strings.ToLower(parts[0])
		if protectedProcesses[base] {
			if len(parts) > 1 {
				return Verdict{Allowed: true}
			}
			return Verdict{Allowed: false, Reason: fmt.Sprintf("BLOCKED: 'pkill -f %s' requires a script name (e.g., 'pkill -f \"%s app.py\"')", base, base)}
		}
	}

	if protectedProcesses[targetLower] {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("BLOCKED: 'pkill %s' would kill the Arcadia Forge framework. Use 'pkill -f \"%s your_script.py\"' to kill a specific process.", target, target)}
	}

	if alwaysAllowedProcesses[targetLower] {
		return Verdict{Allowed: true}
	}

	if hasF {
		return Verdict{Allowed: true}
	}

	return Verdict{Allowed: false, Reason: "pkill only allowed for dev server processes or with -f flag for specific scripts"}
}

var chmodModeRe = regexp.MustCompile(`^[ugoa]*\+x$`)

// validateChmod only allows granting execute permission, never recursive
// or other mode changes.
func validateChmod(command string) Verdict {
	tokens, err := tokenize(command)
	if err != nil {
		return Verdict{Allowed: false, Reason: "could not parse chmod command"}
	}
	if len(tokens) == 0 || tokens[0] != "chmod" {
		return Verdict{Allowed: false, Reason: "not a chmod command"}
	}

	var mode string
	var files []string
	for _, t := range tokens[1:] {
		if strings.HasPrefix(t, "-") {
			return Verdict{Allowed: false, Reason: "chmod flags are not allowed"}
		}
		if mode == "" {
			mode = t
		} else {
			files = append(files, t)
		}
	}
	if mode == "" {
		return Verdict{Allowed: false, Reason: "chmod requires a mode"}
	}
	if len(files) == 0 {
		return Verdict{Allowed: false, Reason: "chmod requires at least one file"}
	}
	if !chmodModeRe.MatchString(mode) {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("chmod only allowed with +x mode, got: %s", mode)}
	}
	return Verdict{Allowed: true}
}

var alwaysAllowedWinProcesses = map[string]bool{
	"vite.exe": true, "vite.cmd": true, "next.exe": true, "next.cmd": true,
	"webpack.exe": true, "webpack.cmd": true, "esbuild.exe": true, "esbuild.cmd": true,
	"parcel.exe": true, "parcel.cmd": true, "rollup.exe": true, "rollup.cmd": true,
	"tsc.exe": true, "tsc.cmd": true, "jest.exe": true, "jest.cmd": true,
	"vitest.exe": true, "vitest.cmd": true, "playwright.exe": true, "playwright.cmd": true,
	"cypress.exe": true, "cypress.cmd": true, "uvicorn.exe": true, "gunicorn.exe": true,
	"flask.exe": true, "streamlit.exe": true,
}

var protectedWinProcesses = map[string]bool{
	"python.exe": true, "python": true, "python3.exe": true, "pythonw.exe": true,
	"node.exe": true, "node": true, "npm.exe": true, "npm": true, "npm.cmd": true,
	"npx.exe": true, "npx": true, "npx.cmd": true,
}

// validateTaskkill is the Windows analogue of validatePkill: /FI filters
// make a protected process targetable, bare /IM does not.
func validateTaskkill(command string) Verdict {
	tokens, err := tokenize(command)
	if err != nil {
		return Verdict{Allowed: false, Reason: "could not parse taskkill command"}
	}
	if len(tokens) == 0 {
		return Verdict{Allowed: false, Reason: "empty taskkill command"}
	}

	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = strings.ToLower(t)
	}

	hasFilter := contains(lower, "/fi")

	var processName string
	for i, t := range lower {
		if t == "/im" && i+1 < len(tokens) {
			processName = strings.ToLower(tokens[i+1])
			break
		}
	}

	if processName == "" {
		if contains(lower, "/pid") {
			return Verdict{Allowed: false, Reason: "taskkill by PID is not allowed; use /IM with process name"}
		}
		return Verdict{Allowed: false, Reason: "taskkill must specify process with /IM flag"}
	}

	if protectedWinProcesses[processName] {
		if hasFilter {
			return Verdict{Allowed: true}
		}
		return Verdict{Allowed: false, Reason: fmt.Sprintf("BLOCKED: 'taskkill /IM %s' would kill the Arcadia Forge framework. Use a /FI filter to target specific processes.", processName)}
	}

	if alwaysAllowedWinProcesses[processName] {
		return Verdict{Allowed: true}
	}

	return Verdict{Allowed: false, Reason: "taskkill only allowed for dev server processes"}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

// validateInitScript allows only the project's own init script to run,
// platform-appropriately.
func validateInitScript(command string, p Platform) Verdict {
	tokens, err := tokenize(strings.ReplaceAll(command, "\\", "/"))
	if err != nil {
		return Verdict{Allowed: false, Reason: "could not parse init script command"}
	}
	if len(tokens) == 0 {
		return Verdict{Allowed: false, Reason: "empty command"}
	}

	if p == PlatformWindows {
		script := strings.ToLower(tokens[0])
		if script == "init.bat" || script == "./init.bat" || strings.HasSuffix(script, "/init.bat") {
			return Verdict{Allowed: true}
		}
		if script == "init.ps1" || script == "./init.ps1" || strings.HasSuffix(script, "/init.ps1") {
			return Verdict{Allowed: true}
		}
		if script == "powershell" {
			for i, t := range tokens {
				if strings.ToLower(t) == "-file" && i+1 < len(tokens) {
					ps := strings.ToLower(tokens[i+1])
					if ps == "init.ps1" || ps == "./init.ps1" || strings.HasSuffix(ps, "/init.ps1") {
						return Verdict{Allowed: true}
					}
				}
			}
		}
		return Verdict{Allowed: false, Reason: fmt.Sprintf("only init.bat or init.ps1 allowed on Windows, got: %s", tokens[0])}
	}

	script := tokens[0]
	if script == "./init.sh" || strings.HasSuffix(script, "/init.sh") {
		return Verdict{Allowed: true}
	}
	return Verdict{Allowed: false, Reason: fmt.Sprintf("only ./init.sh is allowed, got: %s", script)}
}

// validateWrapper recurses the allowlist check against a shell wrapper's
// subcommand (cmd /c, powershell -Command, bash -c, sh -c).
func validateWrapper(command string, p Platform) Verdict {
	tokens, err := tokenize(command)
	if err != nil {
		return Verdict{Allowed: false, Reason: "could not parse wrapper command"}
	}
	if len(tokens) == 0 {
		return Verdict{Allowed: false, Reason: "empty wrapper command"}
	}

	wrapper := strings.ToLower(tokens[0])
	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = strings.ToLower(t)
	}

	switch wrapper {
	case "cmd":
		idx := indexOf(lower, "/c")
		if idx == -1 {
			idx = indexOf(lower, "/k")
		}
		if idx == -1 || idx+1 >= len(tokens) {
			return Verdict{Allowed: false, Reason: "cmd requires /c or /k with a subcommand"}
		}
		return Evaluate(strings.Join(tokens[idx+1:], " "), p)

	case "powershell":
		if idx := indexOf(lower, "-file"); idx != -1 {
			return validateInitScript(command, p)
		}
		if idx := indexOf(lower, "-command"); idx != -1 && idx+1 < len(tokens) {
			return Evaluate(strings.Join(tokens[idx+1:], " "), p)
		}
		return Verdict{Allowed: false, Reason: "powershell requires -File or -Command"}

	case "bash", "sh":
		idx := indexOf(lower, "-c")
		if idx == -1 || idx+1 >= len(tokens) {
			return Verdict{Allowed: false, Reason: fmt.Sprintf("%s requires -c with a subcommand", wrapper)}
		}
		return Evaluate(strings.Join(tokens[idx+1:], " "), p)
	}

	return Verdict{Allowed: false, Reason: fmt.Sprintf("unknown wrapper command: %s", wrapper)}
}

func indexOf(ss []string, target string) int {
	for i, s := range ss {
		if s == target {
			return i
		}
	}
	return -1
}
