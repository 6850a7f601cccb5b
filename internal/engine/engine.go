// Package engine is the Integrity Engine: it owns targets, lifecycle,
// the bounded worker pool, the maintenance-mode latch, and wires the
// directory watcher, rename trackers, and classifier together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fullexpi/ransomguard/internal/audit"
	"github.com/fullexpi/ransomguard/internal/baseline"
	"github.com/fullexpi/ransomguard/internal/classifier"
	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/internal/dirwatch"
	"github.com/fullexpi/ransomguard/internal/eventbus"
	"github.com/fullexpi/ransomguard/internal/hasher"
	"github.com/fullexpi/ransomguard/internal/shadowstore"
	"github.com/fullexpi/ransomguard/internal/tracker"
	"github.com/fullexpi/ransomguard/internal/uihook"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// TargetKind distinguishes a file target from a directory target —
// the thing the original monitor's unset target_type attribute left
// ambiguous (spec.md §9's Open Question).
type TargetKind int

const (
	FileTarget TargetKind = iota
	DirectoryTarget
)

// readabilityWaitAttempts and readabilityWaitInterval implement the
// ~2s new-file-adoption readability wait of spec.md §4.7.
const (
	readabilityWaitAttempts = 10
	readabilityWaitInterval = 200 * time.Millisecond
)

// restoreRetryAttempts and restoreRetryBackoff implement the Restore
// Protocol's contention-retry budget.
const (
	restoreRetryAttempts = 20
	restoreRetryBackoff  = 50 * time.Millisecond
)

// antiClobberHold is the descriptor-hold duration after a non-manual
// restore, a deliberate race mitigation against a concurrently running
// encryptor (spec.md §9).
const antiClobberHold = 2 * time.Second

// job is a unit of work handed to the live-event worker pool.
type job func()

// Engine coordinates every component into a running monitor.
type Engine struct {
	mu          sync.RWMutex
	targets     map[string]TargetKind
	maintenance bool
	running     bool

	cfg       *config.Config
	baseline  *baseline.Store
	shadow    *shadowstore.Store
	bus       *eventbus.Bus[models.Incident]
	auditSink audit.Sink
	alertSink alertSink
	uiHook    uihook.Callback

	classifier *classifier.Classifier
	watcher    *dirwatch.Watcher
	trackers   map[string]tracker.Tracker

	// jobs feeds the fixed-size pool that runs file-heavy event handlers
	// (new-file adoption, modification hashing) off the single fsnotify
	// dispatch goroutine, so one slow adoption can't stall event delivery.
	jobs     chan job
	workerWG sync.WaitGroup

	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *slog.Logger
}

// alertSink is the subset of alert.Sink the engine depends on, declared
// locally so the engine needs only Send; cmd/ransomguard's wiring code
// constructs the concrete sink from config.
type alertSink interface {
	Send(incident models.Incident) error
}

// Options bundles the Engine's external collaborators.
type Options struct {
	Config    *config.Config
	Baseline  *baseline.Store
	Shadow    *shadowstore.Store
	AuditSink audit.Sink
	AlertSink alertSink
	UIHook    uihook.Callback
	Logger    *slog.Logger
}

// New builds an Engine and wires its classifier. It does not start
// watching until Start is called.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		targets:   make(map[string]TargetKind),
		cfg:       opts.Config,
		baseline:  opts.Baseline,
		shadow:    opts.Shadow,
		bus:       eventbus.New[models.Incident](),
		auditSink: opts.AuditSink,
		alertSink: opts.AlertSink,
		uiHook:    opts.UIHook,
		trackers:  make(map[string]tracker.Tracker),
		log:       log,
	}

	for _, p := range opts.Config.Targets {
		e.registerTarget(p)
	}

	e.classifier = classifier.New(classifier.Classifier{
		Baseline:         e.baseline,
		Shadow:           e.shadow,
		Cooldown:         classifier.NewCooldown(time.Duration(opts.Config.Core.CooldownSeconds) * time.Second),
		EntropyThreshold: opts.Config.Core.EntropyThreshold,
		IsRelevant:       e.isRelevant,
		IsMaintenance:    e.IsMaintenance,
		IsFileTarget:     e.isFileTarget,
		Adopt:            e.adopt,
		Restore:          e.restore,
		AutoRestore:      func() bool { return e.cfg.Core.AutoRestore },
		Publish:          e.dispatchIncident,
	})

	if e.auditSink != nil {
		e.bus.Subscribe(func(i models.Incident) {
			if e.cfg.Core.SaveLogs {
				if err := e.auditSink.Record(i); err != nil {
					e.log.Error("audit record failed", "error", err)
				}
			}
		})
	}
	if e.alertSink != nil {
		e.bus.Subscribe(func(i models.Incident) {
			if i.Risk == models.RiskRecovery || i.Risk == models.RiskWarning {
				go func() {
					if err := e.alertSink.Send(i); err != nil {
						e.log.Error("alert dispatch failed", "error", err)
					}
				}()
			}
		})
	}
	if e.uiHook != nil {
		e.bus.Subscribe(func(i models.Incident) { go e.uiHook(i) })
	}

	return e
}

func (e *Engine) registerTarget(path string) {
	path = canonicalize(path)
	kind := DirectoryTarget
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		kind = FileTarget
	}
	e.targets[path] = kind
}

func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (e *Engine) dispatchIncident(i models.Incident) {
	e.bus.Publish(i)
}

// IsMaintenance reports whether the engine is mid force-restore.
func (e *Engine) IsMaintenance() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maintenance
}

func (e *Engine) isRelevant(path string) bool {
	path = canonicalize(path)
	lowerPath := strings.ToLower(path)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for t, kind := range e.targets {
		lowerT := strings.ToLower(t)
		if kind == FileTarget {
			if lowerPath == lowerT {
				return true
			}
			continue
		}
		if lowerPath == lowerT || strings.HasPrefix(lowerPath, lowerT+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (e *Engine) isFileTarget(path string) bool {
	path = canonicalize(path)
	e.mu.RLock()
	defer e.mu.RUnlock()
	kind, ok := e.targets[path]
	return ok && kind == FileTarget
}

// adopt runs the new-file adoption routine: wait for readability, hash,
// upsert, shadow-backup, emit CREATED.
func (e *Engine) adopt(path string) {
	var hash string
	var ok bool
	for attempt := 0; attempt < readabilityWaitAttempts; attempt++ {
		hash, ok = hasher.Hash(path)
		if ok {
			break
		}
		time.Sleep(readabilityWaitInterval)
	}
	if !ok {
		return
	}

	if err := e.baseline.Put(path, hash); err != nil {
		e.log.Error("baseline put failed", "path", path, "error", err)
		return
	}
	e.shadow.Backup(path)

	e.dispatchIncident(models.NewIncident(models.RiskCreated, path, "adopted new file"))
}

// restore runs the Restore Protocol for path.
func (e *Engine) restore(path string, manual bool) bool {
	data, ok := e.shadow.RestoreBytes(path)
	if !ok {
		return false
	}

	os.Chmod(path, 0o644)

	var wrote bool
	var f *os.File
	for attempt := 0; attempt < restoreRetryAttempts; attempt++ {
		if !writable(path) {
			os.Chmod(path, 0o644)
		}
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			time.Sleep(restoreRetryBackoff)
			continue
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			f = nil
			time.Sleep(restoreRetryBackoff)
			continue
		}
		f.Sync()
		wrote = true
		break
	}
	if !wrote {
		return false
	}

	// The descriptor stays open through the hold below: a deliberate
	// anti-clobber measure that keeps a concurrently running encryptor
	// from reopening and re-encrypting the file while we alert.
	if !manual {
		e.dispatchIncident(models.NewIncident(models.RiskRecovery, path, "restored from shadow copy"))
		time.Sleep(antiClobberHold)
	}
	f.Close()

	os.Chmod(path, 0o444)

	if !e.IsMaintenance() && manual {
		e.dispatchIncident(models.NewIncident(models.RiskRecovery, path, "restored from shadow copy (manual)"))
	}
	return true
}

// ScanAndSaveBaseline expands every target into its file set, clears
// the baseline, and re-hashes everything from scratch with a bounded
// worker pool. Returns the successfully baselined paths.
func (e *Engine) ScanAndSaveBaseline(ctx context.Context) ([]string, error) {
	files := e.expandTargets()

	if err := e.baseline.Clear(); err != nil {
		return nil, fmt.Errorf("clearing baseline: %w", err)
	}

	workers := e.cfg.Core.WorkerPoolSize
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	pairs := make(map[string]string)
	var baselined []string

	for _, path := range files {
		path := path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			os.Chmod(path, 0o644)
			hash, ok := hasher.Hash(path)
			if !ok {
				return nil
			}
			e.shadow.Backup(path)

			mu.Lock()
			pairs[path] = hash
			baselined = append(baselined, path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("baseline scan: %w", err)
	}

	if err := e.baseline.PutBatch(pairs); err != nil {
		return nil, fmt.Errorf("committing baseline: %w", err)
	}

	for _, path := range baselined {
		e.dispatchIncident(models.NewIncident(models.RiskInit, path, "baselined"))
	}
	return baselined, nil
}

func (e *Engine) expandTargets() []string {
	e.mu.RLock()
	targets := make(map[string]TargetKind, len(e.targets))
	for p, k := range e.targets {
		targets[p] = k
	}
	e.mu.RUnlock()

	var files []string
	for path, kind := range targets {
		if kind == FileTarget {
			files = append(files, path)
			continue
		}
		filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				files = append(files, p)
			}
			return nil
		})
	}
	return files
}

// ForceRestoreAll restores every baselined path from its shadow copy,
// suppressing all event processing for the duration via the
// maintenance latch.
func (e *Engine) ForceRestoreAll(ctx context.Context) error {
	e.mu.Lock()
	e.maintenance = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.maintenance = false
		e.mu.Unlock()
	}()

	time.Sleep(50 * time.Millisecond) // brief quiesce

	all, err := e.baseline.LoadAll()
	if err != nil {
		return fmt.Errorf("loading baseline: %w", err)
	}

	for path := range all {
		e.restore(path, true)
	}
	return nil
}

// AddTarget registers a new target, hashes and baselines it (every file
// under it, for a directory target) immediately, and — if the engine is
// running — starts a rename tracker for a file target or adds watches
// for a directory target.
func (e *Engine) AddTarget(path string) error {
	path = canonicalize(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("adding target %s: %w", path, err)
	}
	kind := DirectoryTarget
	if !info.IsDir() {
		kind = FileTarget
	}

	e.mu.Lock()
	e.targets[path] = kind
	running := e.running
	e.mu.Unlock()

	if kind == FileTarget {
		hash, ok := hasher.Hash(path)
		if ok {
			e.baseline.Put(path, hash)
			e.shadow.Backup(path)
		}
		if running {
			e.startTracker(path)
		}
	} else {
		filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if hash, ok := hasher.Hash(p); ok {
				e.baseline.Put(p, hash)
				e.shadow.Backup(p)
			}
			return nil
		})
		if running && e.watcher != nil {
			e.watcher.AddRecursive(path)
		}
	}
	return nil
}

// RemoveTarget unregisters a target, deletes its baseline record, and
// stops any associated rename tracker.
func (e *Engine) RemoveTarget(path string) error {
	path = canonicalize(path)

	e.mu.Lock()
	delete(e.targets, path)
	e.mu.Unlock()

	e.stopTracker(path)
	return e.baseline.Delete(path)
}

func (e *Engine) startTracker(path string) {
	t := tracker.NewLinuxTracker()
	if err := t.Track(path); err != nil {
		e.log.Error("tracker start failed", "path", path, "error", err)
		return
	}

	e.mu.Lock()
	e.trackers[path] = t
	e.mu.Unlock()

	// The tracker keeps tracking across a rename under its own fd and
	// already updates its internal path on each poll; re-key it here
	// rather than tearing it down and opening a replacement, which
	// would leak the old goroutine/fd and double-report the next move.
	t.Start(context.Background(), func(old, new string) {
		e.classifier.HandleMoved(old, new)
		e.mu.Lock()
		if cur, ok := e.trackers[old]; ok {
			delete(e.trackers, old)
			e.trackers[new] = cur
		}
		e.mu.Unlock()
	})
}

func (e *Engine) stopTracker(path string) {
	e.mu.Lock()
	t, ok := e.trackers[path]
	if ok {
		delete(e.trackers, path)
	}
	e.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Start installs watchers and trackers and blocks until Stop is called
// or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	w, err := dirwatch.New()
	if err != nil {
		return fmt.Errorf("starting directory watcher: %w", err)
	}
	e.watcher = w

	e.mu.RLock()
	targets := make(map[string]TargetKind, len(e.targets))
	for p, k := range e.targets {
		targets[p] = k
	}
	e.mu.RUnlock()

	for path, kind := range targets {
		if kind == DirectoryTarget {
			if err := w.AddRecursive(path); err != nil {
				e.log.Error("watch failed", "path", path, "error", err)
			}
		} else {
			if err := w.AddRecursive(filepath.Dir(path)); err != nil {
				e.log.Error("watch failed", "path", path, "error", err)
			}
			e.startTracker(path)
		}
	}

	poolSize := e.cfg.Core.WorkerPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	e.jobs = make(chan job, poolSize*8)
	for i := 0; i < poolSize; i++ {
		e.workerWG.Add(1)
		go e.workerLoop()
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.Start(ctx, e.handleDirEvent)
	}()

	<-ctx.Done()
	return e.Stop()
}

func (e *Engine) handleDirEvent(ev dirwatch.Event) {
	switch ev.Kind {
	case dirwatch.Created:
		path := ev.Path
		e.submit(func() { e.classifier.HandleCreated(path) })
	case dirwatch.Modified:
		path := ev.Path
		e.submit(func() { e.classifier.HandleModified(path) })
	case dirwatch.Removed:
		e.classifier.HandleDeleted(ev.Path)
	case dirwatch.Moved:
		e.classifier.HandleMoved(ev.OldPath, ev.Path)
	}
}

// submit hands a file-heavy handler to the worker pool, keeping the
// single fsnotify dispatch goroutine free to keep draining events.
func (e *Engine) submit(j job) {
	e.jobs <- j
}

func (e *Engine) workerLoop() {
	defer e.workerWG.Done()
	for j := range e.jobs {
		j()
	}
}

// Stop halts the directory watcher and every rename tracker, drains the
// live-event worker pool, and marks the engine as no longer running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	trackers := make([]tracker.Tracker, 0, len(e.trackers))
	for _, t := range e.trackers {
		trackers = append(trackers, t)
	}
	e.trackers = make(map[string]tracker.Tracker)
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if e.jobs != nil {
		close(e.jobs)
		e.workerWG.Wait()
		e.jobs = nil
	}

	for _, t := range trackers {
		t.Stop()
	}
	if e.watcher != nil {
		e.watcher.Close()
	}
	return nil
}

// UpdateSettings applies the three live-updatable config fields.
// AutoRestore and SaveLogs take effect on the next event; AlertEmail is
// stored in the config only, and an already-built SMTP sink keeps the
// recipient it was constructed with.
func (e *Engine) UpdateSettings(saveLogs bool, alertEmail string, autoRestore bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Core.SaveLogs = saveLogs
	e.cfg.Core.AlertEmail = alertEmail
	e.cfg.Core.AutoRestore = autoRestore
}

// Subscribe lets an external consumer observe every dispatched incident
// (used by the `run` CLI command to log incidents).
func (e *Engine) Subscribe(h func(models.Incident)) {
	e.bus.Subscribe(h)
}
