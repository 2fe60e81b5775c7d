package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/hazyhaar/pensee/internal/thought"
)

func testEngine(t *testing.T, project string) *Engine {
	t.Helper()
	return NewEngine(t.TempDir(), project, Config{}, nil)
}

func mkThought(t *testing.T, n int, stage thought.Stage) *thought.Thought {
	t.Helper()
	th, err := thought.New(thought.Input{
		Thought:       fmt.Sprintf("thought %d", n),
		ThoughtNumber: n,
		TotalThoughts: 10,
		Stage:         stage,
	}, fmt.Sprintf("th_%04d", n), time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("mkThought(%d): %v", n, err)
	}
	return th
}

// WHAT: appended thoughts come back in insertion order with all fields intact.
func TestEngine_AppendLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t, "roundtrip")

	want := []*thought.Thought{
		mkThought(t, 1, thought.StageScoping),
		mkThought(t, 2, thought.StageTesting),
	}
	for _, th := range want {
		if err := eng.Append(ctx, th); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load returned %d thoughts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Thought != want[i].Thought ||
			got[i].Stage != want[i].Stage || got[i].ThoughtNumber != want[i].ThoughtNumber {
			t.Errorf("thought[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// WHAT: loading a project that never persisted anything yields an empty
// history, not an error.
func TestEngine_LoadMissingFile(t *testing.T) {
	eng := testEngine(t, "fresh")
	got, err := eng.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load returned %d thoughts, want 0", len(got))
	}
}

// WHAT: concurrent appends never lose a write.
// WHY: the engine serializes read-modify-write cycles with an in-process
// mutex plus an exclusive file lock; this is the contract callers rely on.
func TestEngine_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t, "concurrent")

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- eng.Append(ctx, mkThought(t, n, thought.StageImplementation))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != writers {
		t.Fatalf("Load returned %d thoughts, want %d", len(got), writers)
	}
	seen := make(map[string]bool, writers)
	for _, th := range got {
		if seen[th.ID] {
			t.Errorf("duplicate thought id %s", th.ID)
		}
		seen[th.ID] = true
	}
}

// WHAT: Clear empties the history and clearing twice is not an error.
func TestEngine_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t, "clear")

	if err := eng.Append(ctx, mkThought(t, 1, thought.StageScoping)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := eng.Clear(ctx); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
	}
	got, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load after Clear returned %d thoughts, want 0", len(got))
	}
}

// WHAT: a corrupted session file degrades to an empty history, and the next
// write snapshots the corrupt bytes to a backup before overwriting them.
func TestEngine_CorruptionRecovery(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t, "corrupt")

	if err := os.WriteFile(eng.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	got, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("Load on corrupt file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load on corrupt file returned %d thoughts, want 0", len(got))
	}

	if err := eng.Append(ctx, mkThought(t, 1, thought.StageReview)); err != nil {
		t.Fatalf("Append after corruption: %v", err)
	}
	got, err = eng.Load(ctx)
	if err != nil {
		t.Fatalf("Load after recovery: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Load after recovery returned %d thoughts, want 1", len(got))
	}

	baks, err := filepath.Glob(eng.Path() + ".*.bak")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(baks) != 1 {
		t.Fatalf("found %d backups, want 1 (the corrupt snapshot)", len(baks))
	}
	data, err := os.ReadFile(baks[0])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "{not json" {
		t.Errorf("backup contents = %q, want the pre-write bytes", data)
	}
}

// WHAT: backups are pruned to the configured retention count.
func TestEngine_BackupPruning(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(t.TempDir(), "prune", Config{Backups: 2}, nil)

	for i := 1; i <= 6; i++ {
		if err := eng.Append(ctx, mkThought(t, i, thought.StageScoping)); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	baks, err := filepath.Glob(eng.Path() + ".*.bak")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(baks) > 2 {
		t.Fatalf("found %d backups, want at most 2", len(baks))
	}
}

// WHAT: a held exclusive lock makes writes fail with ErrUnavailable once
// the bounded wait expires, instead of blocking forever.
func TestEngine_LockTimeout(t *testing.T) {
	dir := t.TempDir()
	eng := NewEngine(dir, "busy", Config{LockTimeout: 150 * time.Millisecond, LockPoll: 10 * time.Millisecond}, nil)

	holder := flock.New(filepath.Join(dir, "busy_session.lock"))
	if err := holder.Lock(); err != nil {
		t.Fatalf("take external lock: %v", err)
	}
	defer holder.Unlock()

	err := eng.Append(context.Background(), mkThought(t, 1, thought.StageScoping))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Append under held lock = %v, want ErrUnavailable", err)
	}
}

// WHAT: operations on one project never touch another project's file.
func TestEngine_ProjectIsolation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := NewEngine(dir, "alpha", Config{}, nil)
	b := NewEngine(dir, "beta", Config{}, nil)

	if err := a.Append(ctx, mkThought(t, 1, thought.StageScoping)); err != nil {
		t.Fatalf("Append alpha: %v", err)
	}
	if err := b.Append(ctx, mkThought(t, 1, thought.StageTesting)); err != nil {
		t.Fatalf("Append beta: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear beta: %v", err)
	}

	gotA, err := a.Load(ctx)
	if err != nil {
		t.Fatalf("Load alpha: %v", err)
	}
	if len(gotA) != 1 {
		t.Fatalf("alpha has %d thoughts after clearing beta, want 1", len(gotA))
	}
	gotB, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load beta: %v", err)
	}
	if len(gotB) != 0 {
		t.Fatalf("beta has %d thoughts after Clear, want 0", len(gotB))
	}
}

// WHAT: export round-trips through import, and import replaces the target
// project's previous history.
func TestEngine_ExportImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := NewEngine(dir, "src", Config{}, nil)
	dst := NewEngine(dir, "dst", Config{}, nil)

	for i := 1; i <= 2; i++ {
		if err := src.Append(ctx, mkThought(t, i, thought.StageResearch)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := dst.Append(ctx, mkThought(t, 99, thought.StageReview)); err != nil {
		t.Fatalf("Append dst: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "session.json")
	if err := src.Export(ctx, exportPath); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := dst.Import(ctx, exportPath); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got, err := dst.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("dst has %d thoughts after import, want 2 (previous history replaced)", len(got))
	}
	if got[0].Stage != thought.StageResearch {
		t.Errorf("imported stage = %q, want %q", got[0].Stage, thought.StageResearch)
	}
}

// WHAT: a malformed import file is rejected as invalid input, unlike a
// corrupted primary session file which degrades silently.
func TestEngine_ImportRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t, "importbad")

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("not json at all"), 0o644); err != nil {
		t.Fatalf("seed bad file: %v", err)
	}
	if err := eng.Import(ctx, bad); !errors.Is(err, thought.ErrInvalidInput) {
		t.Fatalf("Import(bad) = %v, want ErrInvalidInput", err)
	}
	if err := eng.Import(ctx, filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, thought.ErrInvalidInput) {
		t.Fatalf("Import(missing) = %v, want ErrInvalidInput", err)
	}
}
