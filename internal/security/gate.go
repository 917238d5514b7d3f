// Package security implements the platform-aware command allowlist gate
// (spec.md §4.3). It runs before the Autonomy and Risk gates in the Hook
// Pipeline and never retries or prompts on DENY — the agent must choose
// another path.
package security

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Verdict is the outcome of evaluating one shell command against the
// allowlist.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Platform identifies which allowlist variant to apply. It defaults to
// the host OS but is overridable for tests and for cross-platform
// init-script recognition.
type Platform string

const (
	PlatformUnix    Platform = "unix"
	PlatformWindows Platform = "windows"
)

// CurrentPlatform maps runtime.GOOS to a Platform.
func CurrentPlatform() Platform {
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformUnix
}

var commonCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true, "grep": true,
	"cp": true, "mkdir": true, "pwd": true,
	"npm": true, "node": true, "npx": true,
	"git": true,
	"ps": true, "sleep": true, "timeout": true,
	"python": true, "python3": true, "mamba": true, "conda": true, "pip": true, "pip3": true,
	"curl": true, "echo": true,
}

var windowsOnlyCommands = map[string]bool{
	"dir": true, "type": true, "copy": true, "md": true, "taskkill": true,
	"where": true, "start": true, "cmd": true, "powershell": true,
	"init.bat": true, "init.ps1": true, ".init.bat": true, ".init.ps1": true,
}

var unixOnlyCommands = map[string]bool{
	"chmod": true, "pkill": true, "lsof": true, "sh": true, "bash": true, "init.sh": true,
}

var windowsExtraValidation = map[string]bool{
	"taskkill": true, "init.bat": true, "init.ps1": true, ".init.bat": true, ".init.ps1": true,
	"powershell": true, "cmd": true,
}

var unixExtraValidation = map[string]bool{
	"pkill": true, "chmod": true, "init.sh": true, "bash": true, "sh": true,
}

// AllowedCommands returns the set of first-token commands allowed on the
// given platform.
func AllowedCommands(p Platform) map[string]bool {
	out := make(map[string]bool, len(commonCommands))
	for k := range commonCommands {
		out[k] = true
	}
	extra := unixOnlyCommands
	if p == PlatformWindows {
		extra = windowsOnlyCommands
	}
	for k := range extra {
		out[k] = true
	}
	return out
}

// ExtraValidationCommands returns the set of commands that need a second,
// command-specific validation pass beyond the plain allowlist check.
func ExtraValidationCommands(p Platform) map[string]bool {
	if p == PlatformWindows {
		return windowsExtraValidation
	}
	return unixExtraValidation
}

var chainSplit = regexp.MustCompile(`\s*(?:&&|\|\|)\s*`)
var semicolonSplit = regexp.MustCompile(`\s*;\s*`)

// SplitSegments breaks a compound command into individual segments on
// &&, ||, and ; (not on pipes — those stay one segment, per spec).
func SplitSegments(command string) []string {
	var out []string
	for _, chunk := range chainSplit.Split(command, -1) {
		for _, seg := range semicolonSplit.Split(chunk, -1) {
			seg = strings.TrimSpace(seg)
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}

var shellKeywords = map[string]bool{
	"if": true, "then": true, "else": true, "elif": true, "fi": true,
	"for": true, "while": true, "until": true, "do": true, "done": true,
	"case": true, "esac": true, "in": true, "!": true, "{": true, "}": true,
}

// ExtractCommands tokenizes a shell command string and returns the base
// command name of every command that would actually execute (skipping
// flags, keywords, and variable assignments). An unparseable command
// (unbalanced quotes) returns nil, which callers must treat as a DENY —
// the fail-safe default.
func ExtractCommands(command string) []string {
	var commands []string
	for _, segment := range semicolonSplit.Split(command, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		tokens, err := tokenize(segment)
		if err != nil {
			return nil
		}
		if len(tokens) == 0 {
			continue
		}

		expectCommand := true
		for _, tok := range tokens {
			switch {
			case tok == "|" || tok == "||" || tok == "&&" || tok == "&":
				expectCommand = true
			case shellKeywords[tok]:
				// keyword precedes a command; leave expectCommand as-is
			case strings.HasPrefix(tok, "-"):
				// flag, skip
			case strings.Contains(tok, "=") && !strings.HasPrefix(tok, "="):
				// VAR=value assignment, skip
			case expectCommand:
				commands = append(commands, strings.ToLower(baseName(tok)))
				expectCommand = false
			}
		}
	}
	return commands
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

// tokenize is a small POSIX-ish shell-word tokenizer: splits on
// whitespace, honoring single and double quotes. It deliberately does not
// support full shell grammar (backticks, $(), escapes inside quotes) —
// the allowlist gate only needs to find command names and flags, and an
// agent trying to hide a command behind substitution is exactly the case
// the fail-safe DENY-on-unparseable rule exists for.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	hasCur := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteByte(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'':
			inSingle = true
			hasCur = true
		case c == '"':
			inDouble = true
			hasCur = true
		case c == ' ' || c == '\t':
			if hasCur {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasCur = false
			}
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unbalanced quotes")
	}
	if hasCur {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// Evaluate is the entry point the Hook Pipeline calls for a shell_exec
// tool invocation. It returns DENY for anything not in the platform allowlist,
// applies command-specific extra validation, and always denies `cd`
// (the agent runs in a fixed root).
func Evaluate(command string, p Platform) Verdict {
	if strings.TrimSpace(command) == "" {
		return Verdict{Allowed: true}
	}

	allowed := AllowedCommands(p)
	needsExtra := ExtraValidationCommands(p)

	commands := ExtractCommands(command)
	if commands == nil {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("could not parse command for security validation: %s", command)}
	}
	if len(commands) == 0 {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("could not parse command for security validation: %s", command)}
	}

	segments := SplitSegments(command)

	for _, cmd := range commands {
		if cmd == "cd" {
			return Verdict{Allowed: false, Reason: "BLOCKED: 'cd' is not allowed. The agent runs in a fixed root. Use relative paths or flags like '--prefix' for npm or '-C' for git."}
		}
		if !allowed[cmd] {
			return Verdict{Allowed: false, Reason: fmt.Sprintf("command '%s' is not in the allowed commands list for this platform", cmd)}
		}
		if needsExtra[cmd] {
			segment := commandSegmentFor(cmd, segments, command)
			if v := validateExtra(cmd, segment, p); !v.Allowed {
				return v
			}
		}
	}

	return Verdict{Allowed: true}
}

func commandSegmentFor(cmd string, segments []string, fallback string) string {
	for _, seg := range segments {
		for _, c := range ExtractCommands(seg) {
			if c == cmd {
				return seg
			}
		}
	}
	return fallback
}

func validateExtra(cmd, segment string, p Platform) Verdict {
	switch cmd {
	case "pkill":
		return validatePkill(segment)
	case "chmod":
		return validateChmod(segment)
	case "taskkill":
		return validateTaskkill(segment)
	case "init.sh", "init.bat", "init.ps1", ".init.bat", ".init.ps1":
		return validateInitScript(segment, p)
	case "bash", "sh", "cmd", "powershell":
		return validateWrapper(segment, p)
	}
	return Verdict{Allowed: true}
}
