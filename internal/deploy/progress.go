// File: internal/deploy/progress.go
// Brief: Observer contracts shared by the console, the web mirror, and tests.

// Package deploy drives one Nephelios deployment from the client side: it pumps
// frames from the backend's progress stream into a tracker and fans the resulting
// snapshots out to observers.
package deploy

import (
	"context"

	"github.com/example/nephelios/internal/progress"
)

// Source yields raw progress frames. Next returns io.EOF once the stream closes.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Observer receives every snapshot that differs from the previous one.
type Observer interface {
	HandleSnapshot(progress.Snapshot)
}

// ResultObserver is an Observer that also wants the deployed application. It is
// called once, before the settle delay.
type ResultObserver interface {
	Observer
	HandleResult(progress.DeployedApplication)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(progress.Snapshot)

func (f ObserverFunc) HandleSnapshot(s progress.Snapshot) { f(s) }
