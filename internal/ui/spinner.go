// File: internal/ui/spinner.go
// Brief: Internal ui package implementation for 'spinner'.

// spinner.go implements the CLI spinner displayed while nephelios waits on the backend (create requests, app lookups).
package ui

import (
	"fmt"
	"io"
	"time"
)

// StartSpinner prints a lightweight ASCII spinner until the returned
// stop function is called. The stop function prints either "[done]"
// or "[fail]" depending on the success flag. A nil writer yields a no-op.
func StartSpinner(w io.Writer, message string) func(success bool) {
	if w == nil {
		return func(bool) {}
	}
	frames := []rune{'|', '/', '-', '\\'}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		idx := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %c", message, frames[idx])
				idx = (idx + 1) % len(frames)
			}
		}
	}()
	return func(success bool) {
		select {
		case <-done:
			return
		default:
			close(done)
		}
		<-exited
		status := "[done]"
		if !success {
			status = "[fail]"
		}
		fmt.Fprintf(w, "\r%s %s\n", message, status)
	}
}
