package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/nephelios/internal/progress"
)

func TestDeployConsoleRendersChipsAndProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewDeployConsole(buf, DeployMetadata{AppName: "landy", AppType: "nodejs"}, DeployConsoleOptions{Enabled: true, Width: 80})

	c.HandleSnapshot(progress.Snapshot{
		Steps: []progress.StepView{
			{Name: progress.StepCloneRepository, State: progress.StateCompleted},
			{Name: progress.StepBuildImage, State: progress.StateInProgress},
		},
		Completed: []string{progress.StepCloneRepository},
		Total:     3,
		Ratio:     1.0 / 3.0,
	})

	out := buf.String()
	for _, want := range []string{"Deploying landy | nodejs", "● Cloning Repository", "⟳ Building Docker Image", " 33% (1/3 steps)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Starting deployment") {
		t.Fatalf("unannounced step must not be rendered:\n%s", out)
	}
}

func TestDeployConsoleRedrawsOnlyChangedSections(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewDeployConsole(buf, DeployMetadata{AppName: "landy"}, DeployConsoleOptions{Enabled: true, Width: 80})
	snap := progress.Snapshot{Total: 3}
	c.HandleSnapshot(snap)
	buf.Reset()

	c.HandleSnapshot(snap)
	if buf.Len() != 0 {
		t.Fatalf("identical snapshot should not redraw, got %q", buf.String())
	}

	c.HandleSnapshot(progress.Snapshot{
		Steps: []progress.StepView{{Name: progress.StepCloneRepository, State: progress.StateInProgress}},
		Total: 3,
	})
	out := buf.String()
	if strings.Contains(out, "Deploying landy") {
		t.Fatalf("metadata line should not be rewritten:\n%q", out)
	}
	if !strings.HasPrefix(out, "\x1b[1F\x1b[J") {
		t.Fatalf("expected cursor to move up over the step list only, got %q", out)
	}
}

func TestDeployConsoleDisabledWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewDeployConsole(buf, DeployMetadata{}, DeployConsoleOptions{})
	c.HandleSnapshot(progress.Snapshot{Total: 3})
	c.Done()
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestDeployConsoleDoneClearsView(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewDeployConsole(buf, DeployMetadata{}, DeployConsoleOptions{Enabled: true})
	c.HandleSnapshot(progress.Snapshot{Total: 3})
	buf.Reset()
	c.Done()
	if buf.String() != "\x1b[3F\x1b[J" {
		t.Fatalf("unexpected clear sequence %q", buf.String())
	}
}

func TestFormatProgressBarClamps(t *testing.T) {
	line := formatProgressBar(progress.Snapshot{Completed: []string{"a", "b"}, Total: 2, Ratio: 1.5}, 10)
	if strings.Count(line, "█") != 10 {
		t.Fatalf("expected full bar, got %q", line)
	}
}
