package logging

import (
	"io"
	"regexp"
)

// defaultRedactPatterns matches common secret shapes so they never reach a
// log sink even if a caller accidentally logs a raw header or env value.
var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`),
	regexp.MustCompile(`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`),
	regexp.MustCompile(`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{95,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{48,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
}

// redactWriter scrubs every rendered log line before it reaches the
// underlying writer, catching secrets embedded in either the message or any
// structured field value.
type redactWriter struct {
	out      io.Writer
	patterns []*regexp.Regexp
}

// NewRedactingOutput wraps out so every line written through it has common
// secret patterns (API keys, bearer tokens, JWTs) replaced with [REDACTED]
// before it reaches disk or the console.
func NewRedactingOutput(out io.Writer, extra ...string) io.Writer {
	patterns := make([]*regexp.Regexp, len(defaultRedactPatterns))
	copy(patterns, defaultRedactPatterns)
	for _, p := range extra {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	return &redactWriter{out: out, patterns: patterns}
}

func (w *redactWriter) Write(p []byte) (int, error) {
	line := string(p)
	for _, re := range w.patterns {
		line = re.ReplaceAllString(line, "[REDACTED]")
	}
	if _, err := w.out.Write([]byte(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}
