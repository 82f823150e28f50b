// File: internal/deploy/session.go
// Brief: Consumer loop feeding the progress stream into a tracker.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/nephelios/internal/progress"
)

// ErrStreamEnded is returned when the progress stream closes before the terminal event.
var ErrStreamEnded = errors.New("progress stream ended before deployment finished")

// SessionOptions tunes a Session.
type SessionOptions struct {
	// Steps is the ordered step catalog. Empty means progress.DefaultSteps().
	Steps []string
	// Settle is how long Run lingers after the terminal event so observers can show
	// the final state before the caller tears the stream down.
	Settle time.Duration
	Logger logr.Logger
}

// Session tracks one deployment run. It is driven by a single goroutine.
type Session struct {
	tracker   *progress.Tracker
	source    Source
	observers []Observer
	settle    time.Duration
	log       logr.Logger
	started   time.Time
	lastRev   uint64
	frames    int
}

// NewSession starts a tracker over the configured catalog.
func NewSession(src Source, opts SessionOptions) (*Session, error) {
	if src == nil {
		return nil, errors.New("deploy session requires a progress source")
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	steps := opts.Steps
	if len(steps) == 0 {
		steps = progress.DefaultSteps()
	}
	tracker := progress.NewTracker(log.WithName("tracker"))
	if err := tracker.Start(steps); err != nil {
		return nil, err
	}
	return &Session{
		tracker: tracker,
		source:  src,
		settle:  opts.Settle,
		log:     log,
	}, nil
}

// AddObserver registers a sink for snapshots. Call before Run.
func (s *Session) AddObserver(obs Observer) {
	if s == nil || obs == nil {
		return
	}
	s.observers = append(s.observers, obs)
}

// Snapshot returns the tracker's current snapshot.
func (s *Session) Snapshot() progress.Snapshot {
	return s.tracker.Snapshot()
}

// Elapsed reports how long Run has been going.
func (s *Session) Elapsed() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started).Truncate(100 * time.Millisecond)
}

// Run consumes frames until the deployment turns terminal, the stream ends, or ctx
// is done. Malformed frames are dropped by the tracker and never end the run.
func (s *Session) Run(ctx context.Context) (progress.DeployedApplication, error) {
	s.started = time.Now()
	s.lastRev = s.tracker.Revision()
	s.broadcast(s.tracker.Snapshot())
	for {
		frame, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				snap := s.tracker.Snapshot()
				return progress.DeployedApplication{}, fmt.Errorf("%w (%d/%d steps completed)", ErrStreamEnded, len(snap.Completed), snap.Total)
			}
			return progress.DeployedApplication{}, err
		}
		s.frames++
		snap := s.tracker.ApplyMessage(frame)
		if rev := s.tracker.Revision(); rev != s.lastRev {
			s.lastRev = rev
			s.broadcast(snap)
		}
		if !s.tracker.IsTerminal() {
			continue
		}
		result, err := s.tracker.Result()
		if err != nil {
			return progress.DeployedApplication{}, err
		}
		for _, obs := range s.observers {
			if ro, ok := obs.(ResultObserver); ok {
				ro.HandleResult(result)
			}
		}
		s.log.V(1).Info("deployment finished", "app", result.AppName, "status", result.Status, "frames", s.frames, "elapsed", s.Elapsed().String())
		s.linger(ctx)
		return result, nil
	}
}

func (s *Session) linger(ctx context.Context) {
	if s.settle <= 0 {
		return
	}
	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Session) broadcast(snap progress.Snapshot) {
	for _, obs := range s.observers {
		obs.HandleSnapshot(snap.Clone())
	}
}
