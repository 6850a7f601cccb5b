// Package alert delivers incident notifications to external channels. The
// engine hands each RECOVERY or WARNING incident to its alert sink in a
// new goroutine, so delivery never blocks the responder. A FanOut calls
// its sinks one after another in that goroutine: a failing channel does
// not stop the others, but a slow one delays the ones after it.
package alert

import "github.com/fullexpi/ransomguard/pkg/models"

// Sink delivers incidents to an external channel.
type Sink interface {
	// Name identifies the sink for logging.
	Name() string
	// Send delivers a formatted incident notification.
	Send(incident models.Incident) error
	// SendRaw sends a pre-formatted message that isn't tied to a
	// specific incident.
	SendRaw(message string) error
	// Test sends a test notification to verify the sink is reachable.
	Test() error
}

func emoji(risk models.Risk) string {
	switch risk.Severity() {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	default:
		return "ℹ️"
	}
}
