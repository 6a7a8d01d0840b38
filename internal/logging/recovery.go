// Package logging provides panic recovery with stack trace logging.
package logging

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
)

// RecoveryHandler handles panics with logging
type RecoveryHandler struct {
	Component string
	OnPanic   func(err interface{}, stack string)
}

// NewRecoveryHandler creates a recovery handler for a component
func NewRecoveryHandler(component string) *RecoveryHandler {
	return &RecoveryHandler{
		Component: component,
	}
}

// Wrap executes fn with panic recovery
func (r *RecoveryHandler) Wrap(fn func()) {
	defer r.recover()
	fn()
}

// recover handles a panic and logs it
func (r *RecoveryHandler) recover() {
	if rec := recover(); rec != nil {
		stack := string(debug.Stack())
		r.handlePanic(rec, stack)
	}
}

// handlePanic processes the panic - logs and calls custom handler
func (r *RecoveryHandler) handlePanic(rec interface{}, stack string) {
	ts := time.Now().UTC().Format(time.RFC3339)

	event := Event{
		Timestamp: ts,
		Level:     LevelError,
		Component: r.Component,
		Event:     "panic_recovered",
		Error:     fmt.Sprintf("%v", rec),
		Extra: map[string]interface{}{
			"stack":     stack,
			"recovered": true,
		},
	}
	eventJSON, _ := json.Marshal(event)
	outMu.Lock()
	fmt.Fprintf(out, "%s\n", eventJSON)
	outMu.Unlock()

	if r.OnPanic != nil {
		r.OnPanic(rec, stack)
	}
}
