// Package verify implements the verification harness: it runs a
// configurable set of named tools as subprocesses and folds their output
// into a models.Verdict. A failing tool is ordinary verdict data, never a
// Go error: only setup problems (bad working directory, misconfigured
// tool) surface as errors from this package.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/undercity/undercity/pkg/gitexec"
	"github.com/undercity/undercity/pkg/models"
)

// Tool is one named, invokable verification check. Command is an argv slice, never a shell string.
type Tool struct {
	Name     string
	Command  []string
	Timeout  time.Duration
	Critical bool // failing this tool fails the whole verdict
}

// Registry maps check kind ("typecheck", "test", "lint", "build", "spell",
// "security") to the tool that implements it, loaded from pkg/config.
type Registry struct {
	Typecheck Tool
	Test      Tool
	Lint      Tool
	Build     Tool
	Spell     Tool
	Security  Tool
}

// Harness runs a Registry's tools against a working directory.
type Harness struct {
	Registry Registry
	Logger   *slog.Logger
}

func New(reg Registry, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{Registry: reg, Logger: logger}
}

// Run executes every check the options request and returns a Verdict.
// It never returns a non-nil error for a failing check; error is reserved
// for a working directory that does not exist or similar setup failure.
func (h *Harness) Run(ctx context.Context, opts models.VerificationOptions) (*models.Verdict, error) {
	if opts.WorkingDirectory == "" {
		return nil, fmt.Errorf("verify: working directory is required")
	}

	v := &models.Verdict{Passed: true}

	type planned struct {
		tool Tool
		run  bool
	}
	plan := []planned{
		{h.Registry.Typecheck, opts.RunTypecheck},
		{h.Registry.Test, opts.RunTests},
		{h.Registry.Lint, opts.RunLint},
		{h.Registry.Build, opts.RunBuild},
	}
	if !opts.SkipOptionalChecks {
		plan = append(plan,
			planned{h.Registry.Spell, opts.RunSpell},
			planned{h.Registry.Security, opts.RunSecurity},
		)
	}

	for _, p := range plan {
		if !p.run || len(p.tool.Command) == 0 {
			continue
		}
		issues, ok, err := h.runTool(ctx, p.tool, opts.WorkingDirectory)
		if err != nil {
			return nil, err
		}
		v.Issues = append(v.Issues, issues...)
		if !ok {
			if p.tool.Critical {
				v.Passed = false
			} else {
				v.HasWarnings = true
			}
		}
	}

	changed, err := h.filesChanged(ctx, opts)
	if err != nil {
		h.Logger.Warn("verify: could not compute files changed", "error", err)
	} else {
		v.FilesChanged = changed
	}

	if v.FilesChanged == 0 && len(v.Issues) == 0 {
		v.Issues = append(v.Issues, models.Issue{Category: models.CategoryNoChanges, Message: "no tracked files changed"})
	}

	v.Feedback = formatFeedback(v)
	return v, nil
}

// runTool invokes a single check, returning (issues, passed, setupErr).
// A non-zero exit is folded into issues/passed, never into setupErr.
func (h *Harness) runTool(ctx context.Context, tool Tool, dir string) ([]models.Issue, bool, error) {
	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool.Command[0], tool.Command[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	output := buf.String()
	if err == nil {
		h.Logger.Info("verify: check passed", "tool", tool.Name, "duration", elapsed)
		return nil, true, nil
	}

	h.Logger.Warn("verify: check failed", "tool", tool.Name, "duration", elapsed, "error", err)
	return categorize(tool.Name, output), false, nil
}

func (h *Harness) filesChanged(ctx context.Context, opts models.VerificationOptions) (int, error) {
	repo := gitexec.New(opts.WorkingDirectory)
	if opts.BaseCommit != "" {
		files, err := repo.DiffNameOnly(ctx, opts.BaseCommit)
		if err != nil {
			return 0, err
		}
		return len(files), nil
	}
	_, porcelain, err := repo.Status(ctx)
	if err != nil {
		return 0, err
	}
	if porcelain == "" {
		return 0, nil
	}
	return len(strings.Split(porcelain, "\n")), nil
}

// categorize maps a tool's raw output to a stable set of issue categories
// via known phrases, falling back to the tool's own kind and finally
// CategoryUnknown.
func categorize(toolName string, output string) []models.Issue {
	lower := strings.ToLower(output)
	category := models.CategoryUnknown
	switch {
	case strings.Contains(lower, "cannot find package"), strings.Contains(lower, "undefined:"),
		strings.Contains(lower, "undeclared name"), strings.Contains(lower, "type mismatch"),
		strings.Contains(lower, "does not implement"):
		category = models.CategoryTypecheck
	case strings.Contains(lower, "--- fail"), strings.Contains(lower, "panic:"),
		strings.Contains(lower, "test failed"):
		category = models.CategoryTest
	case strings.Contains(lower, "build failed"), strings.Contains(lower, "compile error"):
		category = models.CategoryBuild
	case strings.Contains(lower, "misspell"), strings.Contains(lower, "spelling"):
		category = models.CategorySpell
	case strings.Contains(lower, "vulnerability"), strings.Contains(lower, "gosec"),
		strings.Contains(lower, "security"):
		category = models.CategorySecurity
	default:
		switch toolName {
		case "typecheck":
			category = models.CategoryTypecheck
		case "test":
			category = models.CategoryTest
		case "lint":
			category = models.CategoryLint
		case "build":
			category = models.CategoryBuild
		case "spell":
			category = models.CategorySpell
		case "security":
			category = models.CategorySecurity
		}
	}

	lines := nonEmptyLines(output)
	if len(lines) == 0 {
		return []models.Issue{{Category: category, Message: fmt.Sprintf("%s: failed with no output", toolName)}}
	}

	const maxLines = 40
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	issues := make([]models.Issue, 0, len(lines))
	for _, line := range lines {
		issues = append(issues, models.Issue{Category: category, Message: line})
	}
	return issues
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func formatFeedback(v *models.Verdict) string {
	if v.Passed && len(v.Issues) == 0 {
		return "all checks passed"
	}
	var b strings.Builder
	if v.Passed {
		fmt.Fprintf(&b, "passed with warnings (%d issue(s)):\n", len(v.Issues))
	} else {
		fmt.Fprintf(&b, "failed (%d issue(s)):\n", len(v.Issues))
	}
	const maxShown = 20
	for i, iss := range v.Issues {
		if i >= maxShown {
			fmt.Fprintf(&b, "... and %d more\n", len(v.Issues)-maxShown)
			break
		}
		fmt.Fprintf(&b, "[%s] %s\n", iss.Category, iss.Message)
	}
	return b.String()
}
