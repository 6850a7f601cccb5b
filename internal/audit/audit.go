// Package audit persists an append-only record of every incident the
// engine observes or acts on. The default sink writes JSON-lines rather
// than the original monitor's rewrite-the-whole-array-per-incident
// approach, trading a single linear file for O(1) appends (see
// DESIGN.md).
package audit

import "github.com/fullexpi/ransomguard/pkg/models"

// Sink records an incident for later review.
type Sink interface {
	Record(incident models.Incident) error
}
