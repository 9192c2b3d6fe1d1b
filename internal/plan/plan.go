package plan

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Chunk groups one file's hunks for a single analysis call. A file whose
// hunk set exceeds the line limit is split across several chunks; a hunk
// is never split mid-hunk.
type Chunk struct {
	ID          string
	Path        string
	ContentType string
	Hunks       []Hunk
}

// LineCount returns the total diff lines in the chunk.
func (c *Chunk) LineCount() int {
	n := 0
	for _, h := range c.Hunks {
		n += h.LineCount()
	}
	return n
}

// Diff renders the chunk's hunks back to unified-diff text.
func (c *Chunk) Diff() string {
	var b strings.Builder
	for _, h := range c.Hunks {
		b.WriteString(h.Header)
		b.WriteString("\n")
		for _, line := range h.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ContainsLine reports whether a new-file line number falls inside any of
// the chunk's hunk ranges.
func (c *Chunk) ContainsLine(line int) bool {
	for _, h := range c.Hunks {
		if h.ContainsLine(line) {
			return true
		}
	}
	return false
}

// Plan is the Planner's output: the ordered chunk sequence plus the files
// that were dropped, surfaced so the final summary can report them.
type Plan struct {
	Chunks       []Chunk
	SkippedFiles []string
	Linters      []string
	TotalFiles   int
}

// Options bounds the Planner.
type Options struct {
	SkipPatterns  []string
	MaxChunkLines int
	MaxFiles      int
}

const (
	defaultMaxChunkLines = 300
	defaultMaxFiles      = 50
)

// DefaultSkipPatterns drop lockfiles, minified assets, vendored trees, and
// generated code.
var DefaultSkipPatterns = []string{
	"*.lock", "*-lock.json", "go.sum", "*.min.js", "*.min.css",
	"vendor/**", "node_modules/**", "dist/**",
	"*.pb.go", "*.generated.*", "*.gen.go",
}

// Build parses a raw diff and produces a bounded Plan. An unparseable diff
// returns a MalformedDiffError.
func Build(raw string, opts Options) (*Plan, error) {
	units, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	maxLines := opts.MaxChunkLines
	if maxLines <= 0 {
		maxLines = defaultMaxChunkLines
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	matchers, err := compilePatterns(opts.SkipPatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling skip patterns: %w", err)
	}

	p := &Plan{TotalFiles: len(units)}
	kept := 0
	linterSet := make(map[string]bool)

	for i := range units {
		unit := &units[i]
		if unit.IsBinary || unit.IsDeleted || matchAny(matchers, unit.Path) {
			p.SkippedFiles = append(p.SkippedFiles, unit.Path)
			continue
		}
		if kept >= maxFiles {
			p.SkippedFiles = append(p.SkippedFiles, unit.Path)
			continue
		}
		kept++

		unit.ContentType = DetectContentType(unit.Path)
		if lt := linterFor(unit.ContentType); lt != "" {
			linterSet[lt] = true
		}
		p.Chunks = append(p.Chunks, chunkUnit(unit, maxLines)...)
	}

	for lt := range linterSet {
		p.Linters = append(p.Linters, lt)
	}
	sort.Strings(p.Linters)

	return p, nil
}

// chunkUnit groups hunks into chunks of at most maxLines diff lines,
// preserving hunk boundaries. A single hunk larger than the limit becomes
// its own oversized chunk.
func chunkUnit(unit *ChangeUnit, maxLines int) []Chunk {
	var chunks []Chunk
	var current []Hunk
	lines := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s#%d", unit.Path, len(chunks)),
			Path:        unit.Path,
			ContentType: unit.ContentType,
			Hunks:       current,
		})
		current = nil
		lines = 0
	}

	for _, h := range unit.Hunks {
		if lines > 0 && lines+h.LineCount() > maxLines {
			flush()
		}
		current = append(current, h)
		lines += h.LineCount()
	}
	flush()
	return chunks
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		patterns = DefaultSkipPatterns
	}
	out := make([]glob.Glob, 0, len(patterns))
	for _, pat := range patterns {
		g, err := glob.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pat, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(matchers []glob.Glob, p string) bool {
	base := path.Base(p)
	for _, g := range matchers {
		if g.Match(p) || g.Match(base) {
			return true
		}
	}
	return false
}

// content-type detection

var extContentTypes = map[string]string{
	".go":     "go",
	".py":     "python",
	".pyi":    "python",
	".sh":     "bash",
	".bash":   "bash",
	".zsh":    "bash",
	".js":     "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".jsx":    "javascript",
	".tf":     "terraform",
	".tfvars": "terraform",
	".hcl":    "terraform",
	".yml":    "yaml",
	".yaml":   "yaml",
	".json":   "json",
	".sql":    "sql",
	".rb":     "ruby",
	".rs":     "rust",
	".java":   "java",
	".md":     "markdown",
}

var ansibleMarkers = []string{"roles/", "playbooks/", "tasks/", "handlers/", "group_vars/", "host_vars/"}

// DetectContentType infers a content type from path and extension. YAML
// under ansible-style directories is classified as ansible.
func DetectContentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == ".yml" || ext == ".yaml" {
		for _, marker := range ansibleMarkers {
			if strings.Contains(p, marker) {
				return "ansible"
			}
		}
	}
	if ct, ok := extContentTypes[ext]; ok {
		return ct
	}
	return "generic"
}

func linterFor(contentType string) string {
	switch contentType {
	case "terraform":
		return "terraform"
	case "yaml":
		return "yamllint"
	case "ansible":
		return "ansible-lint"
	case "bash":
		return "shellcheck"
	case "python":
		return "ruff"
	default:
		return ""
	}
}
