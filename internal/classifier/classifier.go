// Package classifier holds the decision policy that turns a raw
// filesystem event into either a silent baseline update or an incident:
// debounce repeated modifications, re-hash, classify a real change as
// legitimate or hostile, and act.
package classifier

import (
	"fmt"

	"github.com/fullexpi/ransomguard/internal/baseline"
	"github.com/fullexpi/ransomguard/internal/hasher"
	"github.com/fullexpi/ransomguard/internal/shadowstore"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// DefaultEntropyThreshold is the boundary above which non-media file
// content is treated as hostile (ciphertext-like).
const DefaultEntropyThreshold = 7.5

// Classifier evaluates filesystem events against the baseline and acts
// on them. It never owns EngineState directly — everything it needs to
// know about targets, maintenance mode, and restoring a file is
// injected, so the Engine stays the single owner of that state.
type Classifier struct {
	Baseline         *baseline.Store
	Shadow           *shadowstore.Store
	Cooldown         *Cooldown
	EntropyThreshold float64

	// IsRelevant reports whether path is in-scope for any configured
	// target (spec.md §4.5's relevance filter, re-applied here per
	// §4.6's "if irrelevant ... drop").
	IsRelevant func(path string) bool
	// IsMaintenance reports whether the engine is mid force-restore.
	IsMaintenance func() bool
	// IsFileTarget reports whether path is itself a file target (as
	// opposed to a member of a directory target) — resolves spec.md
	// §9's deletion-handler ambiguity.
	IsFileTarget func(path string) bool
	// Adopt runs the new-file adoption routine (§4.7): wait for
	// readability, hash, upsert, shadow-backup, emit CREATED.
	Adopt func(path string)
	// Restore runs the Restore Protocol (§4.7) for path.
	Restore func(path string, manual bool) bool
	// AutoRestore reports the live auto_restore setting.
	AutoRestore func() bool
	// Publish delivers an incident to subscribers (audit, alert, UI).
	Publish func(models.Incident)
}

// New builds a Classifier, defaulting EntropyThreshold when unset.
func New(c Classifier) *Classifier {
	if c.EntropyThreshold == 0 {
		c.EntropyThreshold = DefaultEntropyThreshold
	}
	return &c
}

// HandleCreated processes a created(p) event.
func (c *Classifier) HandleCreated(path string) {
	if c.IsMaintenance() || !c.IsRelevant(path) {
		return
	}
	c.Adopt(path)
}

// HandleMoved processes a moved(src, dst) event.
func (c *Classifier) HandleMoved(src, dst string) {
	if c.IsMaintenance() {
		return
	}
	if c.IsRelevant(dst) {
		c.Adopt(dst)
	}
	if c.IsRelevant(src) {
		c.Baseline.Delete(src)
	}
	c.Publish(models.NewIncident(models.RiskMoved, dst, fmt.Sprintf("moved from %s", src)))
}

// HandleDeleted processes a deleted(p) event.
func (c *Classifier) HandleDeleted(path string) {
	if c.IsMaintenance() || !c.IsRelevant(path) {
		return
	}
	if c.IsFileTarget(path) {
		// The rename tracker is authoritative for file targets: a
		// deletion here is very likely actually a rename the tracker
		// will report on its own, or a genuine delete that leaves
		// nothing further to protect.
		return
	}
	c.Baseline.Delete(path)
	c.Publish(models.NewIncident(models.RiskDeleted, path, "file removed from protected directory"))
}

// HandleModified processes a modified(p) event: the eight-step decision
// core of spec.md §4.6.
func (c *Classifier) HandleModified(path string) {
	if c.IsMaintenance() || !c.IsRelevant(path) {
		return
	}

	// Step 1: cooldown.
	if !c.Cooldown.Allow(path) {
		return
	}

	// Step 2: re-hash; drop if unreadable.
	newHash, ok := hasher.Hash(path)
	if !ok {
		return
	}

	// Step 3: look up the prior hash.
	oldHash, exists := c.Baseline.Get(path)

	// Step 4: first sighting — adopt silently.
	if !exists {
		c.Baseline.Put(path, newHash)
		return
	}

	// Step 5: unchanged — nothing to do.
	if newHash == oldHash {
		return
	}

	// Step 6: a real change. Stamp the cooldown and classify.
	c.Cooldown.Stamp(path)

	attack := c.isAttack(path)

	// Step 7/8: act.
	if attack {
		if c.AutoRestore() {
			c.Restore(path, false)
		} else {
			c.Publish(models.NewIncident(models.RiskWarning, path, "suspicious modification detected; auto_restore disabled"))
		}
		return
	}

	c.Shadow.Backup(path)
	c.Baseline.Put(path, newHash)
	c.Publish(models.NewIncident(models.RiskModified, path, "legitimate modification"))
}

func (c *Classifier) isAttack(path string) bool {
	if hasher.IsMediaExtension(path) {
		return !hasher.SignatureOK(path)
	}
	return hasher.Entropy(path) > c.EntropyThreshold
}
