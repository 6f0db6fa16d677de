package exec

import "strings"

// SafeBuiltins lists shell commands considered safe to auto-approve
// without a human in the loop, provided the command line as a whole
// passes IsSafe. This is the closure the safe-command recognizer (C2)
// checks: extending it extends what can run without approval, so it
// is kept short and read-only by convention.
var SafeBuiltins = []string{
	"cat", "head", "tail", "wc", "sort", "uniq", "grep", "ls", "pwd", "echo",
}

// IsSafe reports whether a shell command line is eligible to run
// without human approval (C8). This requires BOTH: the command's
// binary name is in SafeBuiltins, AND the full argument string
// contains no shell metacharacters that could chain to an unsafe
// command (IsSafeExecutableValue already rejects those). The caller
// is additionally responsible for gating this on sandbox isolation:
// per the runtime's approval priority, the safe-command closure only
// bypasses approval when the shell tool is sandboxed at full isolation.
func IsSafe(commandLine string) bool {
	trimmed := strings.TrimSpace(commandLine)
	if trimmed == "" {
		return false
	}
	if !IsSafeExecutableValue(trimmed) {
		return false
	}

	bin := firstToken(trimmed)
	for _, safe := range SafeBuiltins {
		if bin == safe {
			return true
		}
	}
	return false
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	bin := fields[0]
	if idx := strings.LastIndexByte(bin, '/'); idx >= 0 {
		bin = bin[idx+1:]
	}
	return bin
}
