// Package uihook lets an optional UI layer observe engine activity
// without the engine importing any UI package. It mirrors a Qt/GTK
// front-end subscribing to a signal: the engine calls Callback after
// every incident it publishes, and a UI wires its own refresh logic
// into it.
package uihook

import "github.com/fullexpi/ransomguard/pkg/models"

// Callback is invoked by the engine, in its own goroutine, with each
// incident it publishes. Adding or removing a target and toggling
// maintenance mode do not invoke it.
type Callback func(incident models.Incident)

// Noop is a Callback that does nothing. The engine itself treats a nil
// Callback as no UI attached.
func Noop(models.Incident) {}
