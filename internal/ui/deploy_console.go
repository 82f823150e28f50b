// File: internal/ui/deploy_console.go
// Brief: Internal ui package implementation for 'deploy console'.

// Package ui provides ui helpers.

package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/example/nephelios/internal/progress"
)

var stepTitleCaser = cases.Title(language.Und, cases.NoLower)

type DeployConsoleOptions struct {
	Enabled bool
	Width   int
}

type DeployMetadata struct {
	AppName   string
	AppType   string
	GitHubURL string
	Backend   string
}

// DeployConsole renders deployment progress in place on a terminal.
type DeployConsole struct {
	out  io.Writer
	opts DeployConsoleOptions

	mu         sync.Mutex
	metadata   DeployMetadata
	snapshot   progress.Snapshot
	sections   []consoleSection
	totalLines int
}

type consoleSection struct {
	name  string
	lines []string
}

func NewDeployConsole(out io.Writer, meta DeployMetadata, opts DeployConsoleOptions) *DeployConsole {
	return &DeployConsole{
		out:      out,
		opts:     opts,
		metadata: meta,
	}
}

// HandleSnapshot satisfies deploy.Observer.
func (c *DeployConsole) HandleSnapshot(snap progress.Snapshot) {
	if c == nil || !c.opts.Enabled {
		return
	}
	c.mu.Lock()
	c.snapshot = snap
	c.renderLocked()
	c.mu.Unlock()
}

// Done erases the live view so the caller can print a final summary.
func (c *DeployConsole) Done() {
	if c == nil || !c.opts.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalLines > 0 {
		fmt.Fprintf(c.out, "\x1b[%dF\x1b[J", c.totalLines)
		c.totalLines = 0
		c.sections = nil
	}
}

func (c *DeployConsole) renderLocked() {
	if !c.opts.Enabled || c.out == nil {
		return
	}
	c.applyDiffLocked(c.buildSectionsLocked())
}

func (c *DeployConsole) buildSectionsLocked() []consoleSection {
	return []consoleSection{
		{name: "metadata", lines: []string{formatMetadataSummary(c.metadata)}},
		{name: "progress", lines: []string{formatProgressBar(c.snapshot, c.barWidth())}},
		{name: "steps", lines: formatSteps(c.snapshot)},
	}
}

func (c *DeployConsole) barWidth() int {
	width := c.opts.Width
	if width <= 0 {
		width = 80
	}
	bar := width - 20
	if bar > 40 {
		bar = 40
	}
	if bar < 10 {
		bar = 10
	}
	return bar
}

func (c *DeployConsole) applyDiffLocked(newSections []consoleSection) {
	newTotal := countLines(newSections)
	if len(c.sections) == 0 {
		c.writeSections(newSections)
		c.sections = cloneSections(newSections)
		c.totalLines = newTotal
		return
	}
	idx := diffIndex(c.sections, newSections)
	if idx == -1 && newTotal == c.totalLines {
		return
	}
	if idx == -1 {
		idx = len(newSections)
	}
	startLine := countLines(c.sections[:idx])
	linesBelow := c.totalLines - startLine
	if linesBelow > 0 {
		fmt.Fprintf(c.out, "\x1b[%dF", linesBelow)
	}
	fmt.Fprint(c.out, "\x1b[J")
	c.writeSections(newSections[idx:])
	c.sections = cloneSections(newSections)
	c.totalLines = newTotal
}

func (c *DeployConsole) writeSections(sections []consoleSection) {
	for _, section := range sections {
		for _, line := range section.lines {
			fmt.Fprintf(c.out, "%s\x1b[K\n", line)
		}
	}
}

func formatMetadataSummary(meta DeployMetadata) string {
	parts := []string{}
	if meta.AppName != "" {
		parts = append(parts, fmt.Sprintf("Deploying %s", meta.AppName))
	}
	if meta.AppType != "" {
		parts = append(parts, meta.AppType)
	}
	if meta.GitHubURL != "" {
		parts = append(parts, meta.GitHubURL)
	}
	if meta.Backend != "" {
		parts = append(parts, fmt.Sprintf("via %s", meta.Backend))
	}
	if len(parts) == 0 {
		return "Deploying application"
	}
	return strings.Join(parts, " | ")
}

func formatProgressBar(snap progress.Snapshot, width int) string {
	filled := int(snap.Ratio * float64(width))
	if filled > width {
		filled = width
	}
	bar := color.New(color.FgHiMagenta).Sprint(strings.Repeat("█", filled)) +
		color.New(color.FgHiBlack).Sprint(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%% (%d/%d steps)", bar, snap.Percent(), len(snap.Completed), snap.Total)
}

func formatSteps(snap progress.Snapshot) []string {
	if len(snap.Steps) == 0 {
		return []string{color.New(color.FgHiBlack).Sprint("○ Waiting for the backend to announce the first step...")}
	}
	lines := make([]string, 0, len(snap.Steps))
	for _, step := range snap.Steps {
		lines = append(lines, renderStepChip(step))
	}
	return lines
}

func renderStepChip(step progress.StepView) string {
	label := stepTitleCaser.String(strings.TrimSpace(step.Name))
	if label == "" {
		label = "Step"
	}
	var glyph string
	painter := color.New(color.FgHiBlack)
	switch step.State {
	case progress.StateCompleted:
		glyph = "●"
		painter = color.New(color.FgGreen)
	case progress.StateInProgress:
		glyph = "⟳"
		painter = color.New(color.FgYellow)
	default:
		glyph = "○"
	}
	return painter.Sprintf("%s %s", glyph, label)
}

func cloneSections(sections []consoleSection) []consoleSection {
	if len(sections) == 0 {
		return nil
	}
	out := make([]consoleSection, len(sections))
	for i, sec := range sections {
		lines := make([]string, len(sec.lines))
		copy(lines, sec.lines)
		out[i] = consoleSection{name: sec.name, lines: lines}
	}
	return out
}

func countLines(sections []consoleSection) int {
	total := 0
	for _, sec := range sections {
		total += len(sec.lines)
	}
	return total
}

func diffIndex(oldSections, newSections []consoleSection) int {
	limit := len(oldSections)
	if len(newSections) < limit {
		limit = len(newSections)
	}
	for i := 0; i < limit; i++ {
		if !equalLines(oldSections[i].lines, newSections[i].lines) {
			return i
		}
	}
	if len(oldSections) != len(newSections) {
		return limit
	}
	return -1
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
