package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/nephelios/internal/progress"
)

// Summary is the timing breakdown of one deployment.
type Summary struct {
	Total time.Duration
	// Steps keeps announcement order so the line reads like the pipeline.
	Steps []StepTiming
	// Frames counts snapshots that changed state.
	Frames int
}

type StepTiming struct {
	Name     string
	Duration time.Duration
}

func (s Summary) Line() string {
	var parts []string
	if s.Total > 0 {
		parts = append(parts, fmt.Sprintf("total=%s", formatDuration(s.Total)))
	}
	if len(s.Steps) > 0 {
		parts = append(parts, fmt.Sprintf("steps %s", formatSteps(s.Steps)))
	}
	if s.Frames > 0 {
		parts = append(parts, fmt.Sprintf("%d updates", s.Frames))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Telemetry: " + strings.Join(parts, " · ")
}

func formatSteps(steps []StepTiming) string {
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		parts = append(parts, fmt.Sprintf("%s=%s", step.Name, formatDuration(step.Duration)))
	}
	return strings.Join(parts, ", ")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	rounded := d.Round(10 * time.Millisecond)
	if rounded <= 0 {
		rounded = d
	}
	return rounded.String()
}

// StepTimer measures how long each step spends between being announced and
// completing. It is a deploy observer.
type StepTimer struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	order   []string
	begun   map[string]time.Time
	took    map[string]time.Duration
	frames  int
}

func NewStepTimer() *StepTimer {
	t := &StepTimer{
		now:   time.Now,
		begun: map[string]time.Time{},
		took:  map[string]time.Duration{},
	}
	t.started = t.now()
	return t
}

// HandleSnapshot records state transitions visible in snap.
func (t *StepTimer) HandleSnapshot(snap progress.Snapshot) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	at := t.now()
	for _, step := range snap.Steps {
		if _, ok := t.begun[step.Name]; !ok {
			t.begun[step.Name] = at
			t.order = append(t.order, step.Name)
		}
		if step.State != progress.StateCompleted {
			continue
		}
		if _, done := t.took[step.Name]; !done {
			t.took[step.Name] = at.Sub(t.begun[step.Name])
		}
	}
}

// Summary returns completed step timings in announcement order.
func (t *StepTimer) Summary() Summary {
	if t == nil {
		return Summary{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := Summary{Total: t.now().Sub(t.started), Frames: t.frames}
	for _, name := range t.order {
		if d, ok := t.took[name]; ok {
			out.Steps = append(out.Steps, StepTiming{Name: name, Duration: d})
		}
	}
	return out
}
