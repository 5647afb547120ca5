package logging

import (
	"io"
	"regexp"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`sk-(?:ant-)?[A-Za-z0-9_\-]{16,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{30,}`),
	regexp.MustCompile(`[MN][A-Za-z\d]{23,25}\.[\w-]{6}\.[\w-]{27,}`),
	regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|password)["']?\s*[=:]\s*["']?)[^\s"'&,}]+`),
}

// Redactor scrubs secrets from log output before passing it on
type Redactor struct {
	out     io.Writer
	secrets []string
}

// NewRedactor wraps out. Literal secrets shorter than 4 characters are
// ignored to avoid mangling ordinary text.
func NewRedactor(out io.Writer, secrets ...string) *Redactor {
	r := &Redactor{out: out}
	for _, s := range secrets {
		if len(s) >= 4 {
			r.secrets = append(r.secrets, s)
		}
	}
	// longest first so overlapping secrets are fully replaced
	sort.Slice(r.secrets, func(i, j int) bool { return len(r.secrets[i]) > len(r.secrets[j]) })
	return r
}

// Write implements io.Writer. It reports len(p) on success even when the
// scrubbed line is shorter.
func (r *Redactor) Write(p []byte) (int, error) {
	if _, err := r.out.Write([]byte(r.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Redact returns s with every known secret replaced
func (r *Redactor) Redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	for i, re := range sensitivePatterns {
		if i == len(sensitivePatterns)-1 {
			s = re.ReplaceAllString(s, "${1}"+redacted)
			continue
		}
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}
