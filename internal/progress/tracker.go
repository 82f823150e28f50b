// File: internal/progress/tracker.go
// Brief: Reduces the deployment progress stream into ordered, monotonic step state.

// Package progress turns the step-oriented frames pushed by the Nephelios backend
// into a consistent snapshot of an in-flight deployment. A Tracker is owned by a
// single consumer; it holds no locks, timers, or handles.
package progress

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// Step names announced by the backend for a standard deployment.
const (
	StepCloneRepository = "Cloning repository"
	StepBuildImage      = "Building Docker image"
	StepStartDeployment = "Starting deployment"
)

// DefaultSteps returns the catalog the backend announces for a standard deployment.
func DefaultSteps() []string {
	return []string{StepCloneRepository, StepBuildImage, StepStartDeployment}
}

// StepState is the per-step status.
type StepState string

const (
	StatePending    StepState = "pending"
	StateInProgress StepState = "in_progress"
	StateCompleted  StepState = "completed"
)

// StepView is one visible step inside a Snapshot.
type StepView struct {
	Name  string    `json:"name"`
	State StepState `json:"state"`
}

// Snapshot is a point-in-time read of the tracker. It owns its slices.
type Snapshot struct {
	Steps     []StepView `json:"steps"`
	Completed []string   `json:"completed"`
	Total     int        `json:"total"`
	Ratio     float64    `json:"ratio"`
	Terminal  bool       `json:"terminal"`
}

// Visible returns the announced step names in announcement order.
func (s Snapshot) Visible() []string {
	out := make([]string, 0, len(s.Steps))
	for _, step := range s.Steps {
		out = append(out, step.Name)
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Steps = make([]StepView, len(s.Steps))
	copy(cp.Steps, s.Steps)
	cp.Completed = make([]string, len(s.Completed))
	copy(cp.Completed, s.Completed)
	return cp
}

// Percent returns the completion ratio rounded down to a whole percentage.
func (s Snapshot) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return len(s.Completed) * 100 / s.Total
}

type trackerPhase int

const (
	phaseIdle trackerPhase = iota
	phaseTracking
	phaseTerminal
)

// Tracker owns the client-side view of one deployment run.
type Tracker struct {
	log      logr.Logger
	phase    trackerPhase
	catalog  []string
	states   map[string]StepState
	visible  []string
	done     int
	result   *DeployedApplication
	revision uint64
}

// NewTracker returns an idle tracker. Diagnostics for dropped events go to log.
func NewTracker(log logr.Logger) *Tracker {
	return &Tracker{log: log}
}

// Start installs the ordered step catalog and moves the tracker to tracking.
func (t *Tracker) Start(steps []string) error {
	if t.phase != phaseIdle {
		return ErrAlreadyStarted
	}
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps configured", ErrInvalidConfiguration)
	}
	catalog := make([]string, 0, len(steps))
	states := make(map[string]StepState, len(steps))
	for i, raw := range steps {
		name := strings.TrimSpace(raw)
		if name == "" {
			return fmt.Errorf("%w: step %d has an empty name", ErrInvalidConfiguration, i)
		}
		if _, dup := states[name]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidConfiguration, name)
		}
		states[name] = StatePending
		catalog = append(catalog, name)
	}
	t.catalog = catalog
	t.states = states
	t.visible = nil
	t.done = 0
	t.phase = phaseTracking
	t.revision++
	return nil
}

// Apply consumes one event and returns the resulting snapshot. Events that cannot be
// applied are dropped with a diagnostic; Apply never fails.
func (t *Tracker) Apply(ev Event) Snapshot {
	if err := t.apply(ev); err != nil {
		t.log.V(1).Info("dropping progress event", "reason", err.Error(), "status", string(ev.Status), "step", ev.Step)
	}
	return t.Snapshot()
}

// ApplyMessage decodes a raw stream frame and applies it.
func (t *Tracker) ApplyMessage(raw []byte) Snapshot {
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.log.V(1).Info("dropping progress frame", "reason", err.Error(), "bytes", len(raw))
		return t.Snapshot()
	}
	return t.Apply(ev)
}

func (t *Tracker) apply(ev Event) error {
	switch t.phase {
	case phaseIdle:
		return ErrNotStarted
	case phaseTerminal:
		return nil
	}
	step := strings.TrimSpace(ev.Step)
	switch ev.Status {
	case StatusInProgress:
		state, ok := t.states[step]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStep, step)
		}
		if state != StatePending {
			return nil
		}
		t.states[step] = StateInProgress
		t.visible = append(t.visible, step)
		t.revision++
	case StatusSuccess:
		state, ok := t.states[step]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStep, step)
		}
		switch state {
		case StateCompleted:
			return nil
		case StatePending:
			t.visible = append(t.visible, step)
		}
		t.states[step] = StateCompleted
		t.done++
		t.revision++
	case StatusDeployed:
		if step != DeployedInfoStep {
			return fmt.Errorf("%w: deployed event for step %q", ErrMalformedEvent, step)
		}
		if ev.AppDeployed == nil {
			return fmt.Errorf("%w: deployed event without app_deployed", ErrMalformedEvent)
		}
		app := *ev.AppDeployed
		t.result = &app
		t.phase = phaseTerminal
		t.revision++
	case "":
		return fmt.Errorf("%w: missing status", ErrMalformedEvent)
	default:
		return fmt.Errorf("%w: unsupported status %q", ErrMalformedEvent, ev.Status)
	}
	return nil
}

// Snapshot returns the current state without side effects.
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{
		Steps:     make([]StepView, 0, len(t.visible)),
		Completed: make([]string, 0, t.done),
		Total:     len(t.catalog),
		Terminal:  t.phase == phaseTerminal,
	}
	for _, name := range t.visible {
		state := t.states[name]
		snap.Steps = append(snap.Steps, StepView{Name: name, State: state})
		if state == StateCompleted {
			snap.Completed = append(snap.Completed, name)
		}
	}
	if snap.Total > 0 {
		snap.Ratio = float64(t.done) / float64(snap.Total)
	}
	return snap
}

// Steps returns a copy of the configured catalog.
func (t *Tracker) Steps() []string {
	return append([]string(nil), t.catalog...)
}

// IsTerminal reports whether the terminal event has been applied.
func (t *Tracker) IsTerminal() bool {
	return t.phase == phaseTerminal
}

// Result returns the deployed application captured by the terminal event.
func (t *Tracker) Result() (DeployedApplication, error) {
	if t.phase != phaseTerminal || t.result == nil {
		return DeployedApplication{}, ErrNotReady
	}
	return *t.result, nil
}

// Revision increases every time the tracker state changes. Callers compare
// revisions to skip redundant renders.
func (t *Tracker) Revision() uint64 {
	return t.revision
}
