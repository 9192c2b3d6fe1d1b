package lint

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"redline/internal/review"
)

// Result collects linter output for a run. Findings carry new-file line
// numbers; PerFile holds the raw messages keyed by path for prompt context.
type Result struct {
	Findings []review.Finding
	PerFile  map[string][]string
	Skipped  []string
}

// Runner executes external linters against files in a local working tree.
// Every tool is best-effort: a missing binary or failed invocation skips
// the tool, never the run.
type Runner struct {
	Dir string
	Log zerolog.Logger
}

type tool struct {
	name     string
	args     []string
	perFile  bool
	severity func(msg string) review.Severity
}

var tools = map[string]tool{
	"shellcheck": {
		name:     "shellcheck",
		args:     []string{"-f", "gcc"},
		perFile:  true,
		severity: gccSeverity,
	},
	"yamllint": {
		name:     "yamllint",
		args:     []string{"-f", "parsable"},
		perFile:  true,
		severity: bracketSeverity,
	},
	"ansible-lint": {
		name:     "ansible-lint",
		args:     []string{"-p", "--nocolor"},
		perFile:  true,
		severity: func(string) review.Severity { return review.SeverityWarn },
	},
	"ruff": {
		name:     "ruff",
		args:     []string{"check", "--output-format", "concise", "--no-cache"},
		perFile:  true,
		severity: func(string) review.Severity { return review.SeverityWarn },
	},
	"terraform": {
		name:     "tflint",
		args:     []string{"--format", "compact"},
		perFile:  false,
		severity: compactSeverity,
	},
}

// Run executes the requested linters over the given files. Linter names
// come from the plan; files are diff paths relative to Dir. Paths that do
// not exist locally are ignored so remote-only runs degrade cleanly.
func (r *Runner) Run(ctx context.Context, linters []string, files []string) *Result {
	res := &Result{PerFile: make(map[string][]string)}

	byTool := r.groupFiles(linters, files)
	for _, lt := range linters {
		t, ok := tools[lt]
		if !ok {
			continue
		}
		targets := byTool[lt]
		if t.perFile && len(targets) == 0 {
			continue
		}
		if _, err := exec.LookPath(t.name); err != nil {
			r.Log.Debug().Str("tool", t.name).Msg("linter not installed, skipping")
			res.Skipped = append(res.Skipped, t.name)
			continue
		}
		r.runTool(ctx, t, targets, res)
	}
	return res
}

// groupFiles maps each requested linter to the files it should see,
// keeping only files present on disk.
func (r *Runner) groupFiles(linters []string, files []string) map[string][]string {
	want := make(map[string]bool, len(linters))
	for _, lt := range linters {
		want[lt] = true
	}
	out := make(map[string][]string)
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(r.Dir, f)); err != nil {
			continue
		}
		lt := linterForPath(f)
		if lt != "" && want[lt] {
			out[lt] = append(out[lt], f)
		}
	}
	return out
}

func linterForPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".sh", ".bash":
		return "shellcheck"
	case ".yml", ".yaml":
		return "yamllint"
	case ".py":
		return "ruff"
	case ".tf", ".tfvars":
		return "terraform"
	default:
		return ""
	}
}

func (r *Runner) runTool(ctx context.Context, t tool, files []string, res *Result) {
	args := append([]string{}, t.args...)
	if t.perFile {
		args = append(args, files...)
	}

	cmd := exec.CommandContext(ctx, t.name, args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	// Nonzero exit with output is the normal "issues found" case.
	if err != nil && len(out) == 0 {
		r.Log.Warn().Err(err).Str("tool", t.name).Msg("linter invocation failed, skipping")
		res.Skipped = append(res.Skipped, t.name)
		return
	}

	for _, line := range strings.Split(string(out), "\n") {
		f, ok := parseLine(line)
		if !ok {
			continue
		}
		f.Severity = t.severity(f.Message)
		res.Findings = append(res.Findings, f)
		res.PerFile[f.File] = append(res.PerFile[f.File], line)
	}
}

// parseLine handles the common "file:line[:col]: message" shape the
// supported tools all emit.
var lineRe = regexp.MustCompile(`^([^\s:][^:]*):(\d+)(?::\d+)?:?\s+(.+)$`)

func parseLine(line string) (review.Finding, bool) {
	m := lineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return review.Finding{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return review.Finding{}, false
	}
	return review.Finding{
		File:     filepath.ToSlash(m[1]),
		Line:     n,
		Category: review.CategoryLint,
		Message:  strings.TrimSpace(m[3]),
		Origin:   review.OriginDeterministic,
	}, true
}

func gccSeverity(msg string) review.Severity {
	switch {
	case strings.HasPrefix(msg, "error:"):
		return review.SeverityError
	case strings.HasPrefix(msg, "note:"):
		return review.SeverityInfo
	default:
		return review.SeverityWarn
	}
}

func bracketSeverity(msg string) review.Severity {
	if strings.Contains(msg, "[error]") {
		return review.SeverityError
	}
	return review.SeverityWarn
}

func compactSeverity(msg string) review.Severity {
	if strings.Contains(msg, "Error") {
		return review.SeverityError
	}
	return review.SeverityWarn
}
