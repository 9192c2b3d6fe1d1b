package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"redline/internal/config"
	"redline/internal/gateway"
	"redline/internal/githubapi"
	"redline/internal/llm"
	"redline/internal/logging"
	"redline/internal/orch"
	"redline/internal/output"
	"redline/internal/review"
)

var (
	flagRepo           string
	flagProvider       string
	flagModel          string
	flagFormat         string
	flagOut            string
	flagDiffFile       string
	flagMaxComments    int
	flagThreshold      string
	flagBudgetSeconds  int
	flagDryRun         bool
	flagFailOnFindings bool
	flagNoRedact       bool
	flagNoModel        bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <pr-number>",
	Short: "Review a pull request",
	Long:  "Run the full review pipeline against one pull request and post the results, or print them locally with --dry-run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid pull request number %q", args[0])
		}

		owner, repo, err := splitRepo(flagRepo)
		if err != nil {
			return err
		}

		cfg, err := config.Load(".", buildOverrides())
		if err != nil {
			return err
		}
		if flagNoRedact {
			if err := config.SetField(&cfg, "redactSecrets", "false"); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
		}

		runPipeline(cfg, gateway.Target{Owner: owner, Repo: repo, Number: number})
		return nil
	},
}

func splitRepo(s string) (owner, repo string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("--repo must be owner/name, got %q", s)
	}
	return parts[0], parts[1], nil
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagThreshold != "" {
		m["severityThreshold"] = flagThreshold
	}
	if flagMaxComments > 0 {
		m["maxComments"] = fmt.Sprintf("%d", flagMaxComments)
	}
	if flagBudgetSeconds > 0 {
		m["budgetSeconds"] = fmt.Sprintf("%d", flagBudgetSeconds)
	}
	return m
}

func runPipeline(cfg config.Config, target gateway.Target) {
	log := logging.New(cfg.LogLevel)

	// Credentials are checked before any stage runs. Offline dry runs
	// with a local diff file need no token.
	var gh *githubapi.Client
	if !flagDryRun || flagDiffFile == "" {
		token, err := config.GitHubToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return
		}
		gh, err = githubapi.New(token, config.GitHubAPIURL())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return
		}
	}

	var source orch.DiffSource
	if flagDiffFile != "" {
		source = orch.FileSource{Path: flagDiffFile}
	} else {
		source = gh
	}

	var analyzer llm.Analyzer
	if !flagNoModel {
		var err error
		analyzer, err = llm.New(cfg.Provider, cfg.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return
		}
	}

	var poster gateway.Poster
	if gh != nil {
		poster = gh
	}
	runner := &orch.Runner{
		Source:   source,
		Analyzer: analyzer,
		Gateway: &gateway.Gateway{
			Poster: poster,
			Opts: gateway.Options{
				Marker:                 gateway.DefaultMarker,
				DryRun:                 flagDryRun,
				BlockingWarnCategories: cfg.BlockingWarnCats,
			},
			Log: log,
		},
		Cfg:     cfg,
		Log:     log,
		WorkDir: ".",
	}

	st, err := runner.Run(context.Background(), target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if githubapi.IsAuth(err) || llm.IsAuth(err) {
			exitCode = ExitAuthError
		} else {
			exitCode = ExitRuntimeError
		}
		return
	}

	report := buildReport(st)
	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	if st.DegradedReason != "" {
		exitCode = ExitRuntimeError
		return
	}
	exitCode = findingsGate(st.Verdict.Decision, flagFailOnFindings)
}

// findingsGate maps the verdict to the process exit code. Only a blocking
// verdict trips the gate: comment and approve runs exit 0 even when they
// carry findings.
func findingsGate(decision review.Decision, failOnFindings bool) int {
	if failOnFindings && decision == review.DecisionRequestChanges {
		return ExitFindings
	}
	return ExitSuccess
}

func buildReport(st *orch.State) *output.Report {
	report := &output.Report{
		RunID:            st.RunID,
		Target:           st.Target.String(),
		Decision:         st.Verdict.Decision,
		Findings:         st.Verdict.Findings,
		Notes:            st.Verdict.Notes,
		AnalysisFailures: st.AnalysisFailures,
		Receipt:          st.Receipt,
		Degraded:         st.DegradedReason != "",
		Reason:           st.DegradedReason,
		Summary:          st.Verdict.Summary,
		ElapsedMs:        st.Elapsed.Milliseconds(),
	}
	if st.Plan != nil {
		report.SkippedFiles = st.Plan.SkippedFiles
	}
	return report
}

func init() {
	reviewCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository as owner/name (required)")
	reviewCmd.Flags().StringVar(&flagProvider, "provider", "", "Analysis provider (anthropic, openai, gemini, ollama)")
	reviewCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	reviewCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	reviewCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	reviewCmd.Flags().StringVar(&flagDiffFile, "diff-file", "", "Read the diff from a local file instead of the API")
	reviewCmd.Flags().IntVar(&flagMaxComments, "max-comments", 0, "Maximum findings delivered as comments")
	reviewCmd.Flags().StringVar(&flagThreshold, "severity-threshold", "", "Drop findings below this severity (error, warn, info)")
	reviewCmd.Flags().IntVar(&flagBudgetSeconds, "budget-seconds", 0, "Wall-clock budget for the whole run")
	reviewCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Run the pipeline without posting anything")
	reviewCmd.Flags().BoolVar(&flagFailOnFindings, "fail-on-findings", false, "Exit 1 when the verdict contains findings")
	reviewCmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	reviewCmd.Flags().BoolVar(&flagNoModel, "no-model", false, "Skip model analysis, deterministic checks only")
	_ = reviewCmd.MarkFlagRequired("repo")
}
