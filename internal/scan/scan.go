package scan

import (
	"regexp"
	"strings"

	"redline/internal/plan"
	"redline/internal/review"
)

type secretPattern struct {
	re         *regexp.Regexp
	message    string
	suggestion string
}

var secretPatterns = []secretPattern{
	{
		regexp.MustCompile(`(?i)(?:password|passwd|pwd|secret|api.?key|access.?key|auth.?token|private.?key)\s*[:=]\s*['"][^'"]{8,}['"]`),
		"Potential hardcoded secret",
		"Move secrets to environment variables or a secret manager.",
	},
	{
		regexp.MustCompile(`(?:AKIA|ASIA)[A-Z0-9]{16}`),
		"Potential AWS access key ID",
		"Remove and rotate this key immediately. Use IAM roles or environment variables.",
	},
	{
		regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`),
		"Private key committed to the repository",
		"Never commit private keys. Use a secret manager.",
	},
	{
		regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9]{22}_[A-Za-z0-9]{40,}`),
		"GitHub personal access token detected",
		"Rotate this token immediately and store it in CI secrets.",
	},
	{
		regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
		"Slack token detected",
		"Rotate this token and load it from the environment.",
	},
	{
		regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]{20,}`),
		"Potential hardcoded bearer token",
		"Use environment variables for tokens.",
	},
	{
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
		"JWT committed to the repository",
		"Remove the token and rotate the signing key if it was live.",
	},
}

type unsafePattern struct {
	re         *regexp.Regexp
	severity   review.Severity
	message    string
	suggestion string
}

var unsafePatterns = map[string][]unsafePattern{
	"python": {
		{regexp.MustCompile(`\beval\s*\(`), review.SeverityError, "Use of eval()", "Avoid eval() on untrusted input; use ast.literal_eval() if needed."},
		{regexp.MustCompile(`subprocess\.\w+\(.*shell\s*=\s*True`), review.SeverityWarn, "subprocess with shell=True", "Prefer shell=False with an argument list."},
		{regexp.MustCompile(`\bexcept\s*:`), review.SeverityWarn, "Bare except clause", "Catch specific exceptions instead."},
	},
	"terraform": {
		{regexp.MustCompile(`cidr_blocks\s*=\s*\[?"0\.0\.0\.0/0"?\]`), review.SeverityError, "Open CIDR 0.0.0.0/0 in security group", "Restrict to known IP ranges."},
	},
	"bash": {
		{regexp.MustCompile(`\beval\b`), review.SeverityWarn, "Use of eval in shell", "Avoid eval with untrusted input."},
		{regexp.MustCompile(`curl[^|\n]*\|\s*(?:sudo\s+)?(?:ba)?sh`), review.SeverityError, "Piping curl into a shell", "Download, verify, then execute."},
	},
	"ansible": {
		{regexp.MustCompile(`\bshell\s*:`), review.SeverityWarn, "Ansible shell module usage", "Prefer built-in modules for idempotency."},
	},
	"go": {
		{regexp.MustCompile(`\bmd5\.New\(|\bsha1\.New\(`), review.SeverityWarn, "Weak hash algorithm", "Use SHA-256 or better for anything security-sensitive."},
	},
}

// Chunk runs all deterministic scanners over the chunk's added lines and
// returns error/warn findings with new-file line numbers.
func Chunk(c *plan.Chunk) []review.Finding {
	var findings []review.Finding
	unsafe := unsafePatterns[c.ContentType]

	for hi := range c.Hunks {
		h := &c.Hunks[hi]
		nums := h.NewLineNumbers()
		for i, line := range h.Lines {
			if !strings.HasPrefix(line, "+") {
				continue
			}
			content := line[1:]
			lineNo := nums[i]

			for _, p := range secretPatterns {
				if p.re.MatchString(content) {
					findings = append(findings, review.Finding{
						File:       c.Path,
						Line:       lineNo,
						Severity:   review.SeverityError,
						Category:   review.CategorySecurity,
						Message:    p.message,
						Suggestion: p.suggestion,
						Origin:     review.OriginDeterministic,
					})
				}
			}
			for _, p := range unsafe {
				if p.re.MatchString(content) {
					findings = append(findings, review.Finding{
						File:       c.Path,
						Line:       lineNo,
						Severity:   p.severity,
						Category:   review.CategorySecurity,
						Message:    p.message,
						Suggestion: p.suggestion,
						Origin:     review.OriginDeterministic,
					})
				}
			}
		}
	}
	return findings
}

const placeholder = "[REDACTED]"

// Redact replaces detected secrets in text with a placeholder. Applied to
// diff content before it is sent to an analysis provider and to log lines
// that may embed diff content.
func Redact(text string) string {
	result := text
	for _, p := range secretPatterns {
		result = p.re.ReplaceAllString(result, placeholder)
	}
	return result
}
