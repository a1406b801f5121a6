package ruleset

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/solatis/formguard/internal/rules"
)

const minimalRules = "entity: holiday\nfields:\n  - name: title\n    rules:\n      - id: title.required\n        kind: required\n"

const extendedRules = minimalRules + "  - name: note\n    rules:\n      - id: note.max\n        kind: length\n        max: 10\n"

func TestWatcher_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", minimalRules)
	src := Source{Paths: []string{path}}
	set, err := Load(src)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	reg := rules.NewRegistry(set)

	w, err := NewWatcher(reg, src, WithWatchLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v, want nil", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("entity: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Fatalf("Reload() error = nil for a malformed file")
	}
	if reg.Snapshot() != set {
		t.Errorf("failed reload replaced the rule set")
	}

	if err := os.WriteFile(path, []byte(extendedRules), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v, want nil", err)
	}
	if len(reg.Snapshot().FieldRules("note")) != 1 {
		t.Errorf("reloaded rule set lacks note rules")
	}
}

func TestWatcher_PicksUpFileChanges(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", minimalRules)
	src := Source{Paths: []string{path}}
	set, err := Load(src)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	reg := rules.NewRegistry(set)

	reloaded := make(chan error, 8)
	w, err := NewWatcher(reg, src,
		WithWatchLogger(zaptest.NewLogger(t)),
		WithSettle(20*time.Millisecond),
		WithOnReload(func(err error) { reloaded <- err }))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(extendedRules), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the rule file changed")
	}
	if len(reg.Snapshot().FieldRules("note")) != 1 {
		t.Errorf("watched rule set lacks note rules")
	}
}
