package classifier

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fullexpi/ransomguard/internal/baseline"
	"github.com/fullexpi/ransomguard/internal/hasher"
	"github.com/fullexpi/ransomguard/internal/shadowstore"
	"github.com/fullexpi/ransomguard/pkg/models"
)

type harness struct {
	t         *testing.T
	baseline  *baseline.Store
	shadow    *shadowstore.Store
	incidents []models.Incident
	mu        sync.Mutex
	restored  []string
	maint     bool
	autoRst   bool
	fileTgts  map[string]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	bs, err := baseline.Open(filepath.Join(dir, "integrity.db"), filepath.Join(dir, "secret.key"))
	if err != nil {
		t.Fatalf("baseline.Open: %v", err)
	}
	t.Cleanup(func() { bs.Close() })

	ss := shadowstore.New(filepath.Join(dir, ".shadow_copies"))

	return &harness{t: t, baseline: bs, shadow: ss, autoRst: true, fileTgts: make(map[string]bool)}
}

func (h *harness) publish(i models.Incident) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.incidents = append(h.incidents, i)
}

func (h *harness) risks() []models.Risk {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Risk
	for _, i := range h.incidents {
		out = append(out, i.Risk)
	}
	return out
}

func (h *harness) adopt(path string) {
	hash, ok := hasher.Hash(path)
	if !ok {
		return
	}
	h.baseline.Put(path, hash)
	h.shadow.Backup(path)
	h.publish(models.NewIncident(models.RiskCreated, path, "adopted"))
}

func (h *harness) restore(path string, manual bool) bool {
	data, ok := h.shadow.RestoreBytes(path)
	if !ok {
		return false
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false
	}
	h.mu.Lock()
	h.restored = append(h.restored, path)
	h.mu.Unlock()
	if !manual {
		h.publish(models.NewIncident(models.RiskRecovery, path, "restored from shadow copy"))
	}
	return true
}

func (h *harness) classifier() *Classifier {
	return New(Classifier{
		Baseline:         h.baseline,
		Shadow:           h.shadow,
		Cooldown:         NewCooldown(2 * time.Second),
		EntropyThreshold: 7.5,
		IsRelevant:       func(string) bool { return true },
		IsMaintenance:    func() bool { return h.maint },
		IsFileTarget:     func(p string) bool { return h.fileTgts[p] },
		Adopt:            h.adopt,
		Restore:          h.restore,
		AutoRestore:      func() bool { return h.autoRst },
		Publish:          h.publish,
	})
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// Scenario 1: ransomware overwrite of a text file.
func TestHandleModified_RansomwareOnTextFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, []byte("hello world\n"))
	h.adopt(path)

	random := make([]byte, 1<<20)
	rand.Read(random)
	writeFile(t, path, random)

	h.classifier().HandleModified(path)

	risks := h.risks()
	found := false
	for _, r := range risks {
		if r == models.RiskRecovery {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a RECOVERY incident, got %v", risks)
	}
	if len(h.restored) != 1 {
		t.Fatalf("expected one restore, got %d", len(h.restored))
	}
	restoredData, _ := os.ReadFile(path)
	if string(restoredData) != "hello world\n" {
		t.Errorf("restored content = %q, want original", restoredData)
	}
}

// Scenario 2: legitimate edit.
func TestHandleModified_LegitimateEdit(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "doc.txt")
	writeFile(t, path, []byte("a"))
	h.adopt(path)

	writeFile(t, path, []byte("ab"))
	h.classifier().HandleModified(path)

	risks := h.risks()
	if len(risks) != 2 || risks[1] != models.RiskModified {
		t.Fatalf("risks = %v, want [CREATED MODIFIED]", risks)
	}

	hash, ok := h.baseline.Get(path)
	if !ok {
		t.Fatal("expected baseline record after legitimate edit")
	}
	wantHash, _ := hasher.Hash(path)
	if hash != wantHash {
		t.Errorf("baseline hash = %q, want %q", hash, wantHash)
	}
}

// Scenario 3: image header corruption.
func TestHandleModified_ImageHeaderCorruption(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "photo.png")
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	writeFile(t, path, append(pngHeader, []byte("rest of file")...))
	h.adopt(path)

	corrupted := append([]byte{0, 0, 0, 0}, []byte("rest of file")...)
	writeFile(t, path, corrupted)

	h.classifier().HandleModified(path)

	risks := h.risks()
	if risks[len(risks)-1] != models.RiskRecovery {
		t.Fatalf("risks = %v, want last to be RECOVERY", risks)
	}
}

// Scenario 6: auto_restore disabled.
func TestHandleModified_AutoRestoreDisabled(t *testing.T) {
	h := newHarness(t)
	h.autoRst = false
	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, []byte("hello world\n"))
	h.adopt(path)

	random := make([]byte, 1<<20)
	rand.Read(random)
	writeFile(t, path, random)

	h.classifier().HandleModified(path)

	risks := h.risks()
	if risks[len(risks)-1] != models.RiskWarning {
		t.Fatalf("risks = %v, want last to be WARNING", risks)
	}
	if len(h.restored) != 0 {
		t.Error("file should not have been restored")
	}
}

func TestHandleModified_FirstSightingAdoptsSilently(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "fresh.txt")
	writeFile(t, path, []byte("content"))

	h.classifier().HandleModified(path)

	if len(h.incidents) != 0 {
		t.Errorf("expected no incident on first sighting, got %v", h.risks())
	}
	hash, ok := h.baseline.Get(path)
	if !ok {
		t.Fatal("expected baseline record after first sighting")
	}
	want, _ := hasher.Hash(path)
	if hash != want {
		t.Errorf("hash = %q, want %q", hash, want)
	}
}

func TestHandleModified_UnchangedHashDrops(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "same.txt")
	writeFile(t, path, []byte("content"))
	h.adopt(path)

	// No change between adopt and modify.
	h.classifier().HandleModified(path)

	if len(h.incidents) != 1 { // only the CREATED from adopt
		t.Errorf("expected no additional incidents, got %v", h.risks())
	}
}

func TestHandleModified_CooldownSuppressesBurst(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "burst.txt")
	writeFile(t, path, []byte("v1"))
	h.adopt(path)

	c := h.classifier()

	writeFile(t, path, []byte("v2"))
	c.HandleModified(path)
	firstCount := len(h.risks())

	writeFile(t, path, []byte("v3"))
	c.HandleModified(path)
	secondCount := len(h.risks())

	if secondCount != firstCount {
		t.Errorf("second rapid modification should be suppressed by cooldown: %d -> %d", firstCount, secondCount)
	}
}

func TestHandleDeleted_FileTargetIsIgnored(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "x.bin")
	writeFile(t, path, []byte("data"))
	h.adopt(path)
	h.fileTgts[path] = true

	h.classifier().HandleDeleted(path)

	if _, ok := h.baseline.Get(path); !ok {
		t.Error("file-target deletion should not remove the baseline record")
	}
}

func TestHandleDeleted_DirectoryMemberRemovesRecord(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "member.txt")
	writeFile(t, path, []byte("data"))
	h.adopt(path)

	h.classifier().HandleDeleted(path)

	if _, ok := h.baseline.Get(path); ok {
		t.Error("directory-member deletion should remove the baseline record")
	}
	risks := h.risks()
	if risks[len(risks)-1] != models.RiskDeleted {
		t.Errorf("risks = %v, want last to be DELETED", risks)
	}
}

func TestHandleMoved_AdoptsDestinationAndDeletesSource(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "x.bin")
	dst := filepath.Join(dir, "y.bin")
	writeFile(t, src, []byte("data"))
	h.adopt(src)

	os.Rename(src, dst)
	h.classifier().HandleMoved(src, dst)

	if _, ok := h.baseline.Get(src); ok {
		t.Error("source path should be removed from baseline after move")
	}
	if _, ok := h.baseline.Get(dst); !ok {
		t.Error("destination path should be adopted after move")
	}
	risks := h.risks()
	if risks[len(risks)-1] != models.RiskMoved {
		t.Errorf("risks = %v, want last to be MOVED", risks)
	}
}

func TestHandleCreated_DroppedDuringMaintenance(t *testing.T) {
	h := newHarness(t)
	h.maint = true
	path := filepath.Join(t.TempDir(), "new.txt")
	writeFile(t, path, []byte("data"))

	h.classifier().HandleCreated(path)

	if _, ok := h.baseline.Get(path); ok {
		t.Error("created event during maintenance should be dropped")
	}
}
