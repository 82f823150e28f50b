// File: internal/caststream/deploy_state.go
// Brief: Cached snapshot and result frames replayed to late-joining viewers.

package caststream

import (
	"encoding/json"
	"sync"

	"github.com/example/nephelios/internal/progress"
)

// deployState caches the most recent frames so late-joining clients can hydrate
// their UI immediately instead of waiting for the next step change.
type deployState struct {
	mu       sync.RWMutex
	snapshot *frame
	result   *frame
}

func newDeployState() *deployState {
	return &deployState{}
}

func (s *deployState) Record(f frame) {
	if s == nil {
		return
	}
	cp := cloneFrame(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cp.Kind {
	case frameSnapshot:
		if cp.Snapshot == nil {
			return
		}
		s.snapshot = &cp
	case frameResult:
		if cp.Result == nil {
			return
		}
		s.result = &cp
	}
}

// Latest returns the most recent snapshot, if any.
func (s *deployState) Latest() (progress.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil || s.snapshot.Snapshot == nil {
		return progress.Snapshot{}, false
	}
	return s.snapshot.Snapshot.Clone(), true
}

func (s *deployState) Replay(out chan<- []byte) {
	if s == nil || out == nil {
		return
	}
	for _, f := range s.frames() {
		payload, err := json.Marshal(f)
		if err != nil {
			continue
		}
		if !safeEnqueue(out, payload) {
			return
		}
	}
}

func (s *deployState) frames() []frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []frame
	if s.snapshot != nil {
		out = append(out, cloneFrame(*s.snapshot))
	}
	if s.result != nil {
		out = append(out, cloneFrame(*s.result))
	}
	return out
}

func safeEnqueue(out chan<- []byte, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	ok = true
	out <- payload
	return
}

func cloneFrame(f frame) frame {
	cloned := f
	if f.Snapshot != nil {
		snap := f.Snapshot.Clone()
		cloned.Snapshot = &snap
	}
	if f.Result != nil {
		app := *f.Result
		cloned.Result = &app
	}
	return cloned
}
