package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/queryview/internal/model"
)

func describe(id int64, desc string) Edit {
	return Edit{Op: OpUpdateQuery, QueryID: id, Patch: &model.QueryPatch{Description: &desc}}
}

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	seq1, err := j.Append(describe(1, "first"))
	if err != nil {
		t.Fatalf("Append first: %v", err)
	}
	seq2, err := j.Append(Edit{Op: OpDeleteVisualization, VisualizationID: 9})
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: seq1=%d seq2=%d", seq1, seq2)
	}

	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var replayed []Op
	err = j.Replay(func(_ uint64, e Edit) error {
		replayed = append(replayed, e.Op)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != OpDeleteVisualization {
		t.Fatalf("Replay ops=%v, want [delete_visualization]", replayed)
	}
	if j.Committed() != seq2 {
		t.Fatalf("Committed = %d, want %d after replay", j.Committed(), seq2)
	}
}

func TestReplayStopsAtError(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "catalog.journal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	for _, d := range []string{"a", "b"} {
		if _, err := j.Append(describe(1, d)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	boom := errors.New("boom")
	calls := 0
	err = j.Replay(func(uint64, Edit) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("Replay err=%v calls=%d", err, calls)
	}
	if j.Committed() != 0 {
		t.Fatalf("failed edit was committed")
	}
}

func TestAppendValidates(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "catalog.journal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	bad := []Edit{
		{Op: "rename"},
		{Op: OpUpdateQuery, QueryID: 1},
		{Op: OpPutVisualization, Visualization: &model.Visualization{}},
		{Op: OpPutWidget},
	}
	for _, e := range bad {
		if _, err := j.Append(e); err == nil {
			t.Errorf("Append(%+v) succeeded, want error", e)
		}
	}
}

func TestReopenCompactsCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.journal")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seq, _ := j.Append(describe(1, "done"))
	if _, err := j.Append(describe(1, "pending")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Commit(seq); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = j.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	var descs []string
	if err := j2.Replay(func(_ uint64, e Edit) error {
		descs = append(descs, *e.Patch.Description)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(descs) != 1 || descs[0] != "pending" {
		t.Fatalf("replayed %v, want [pending]", descs)
	}

	next, err := j2.Append(describe(1, "later"))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if next != 3 {
		t.Fatalf("next seq = %d, want 3", next)
	}
}

func TestOpenIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(describe(4, "ok")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate torn write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":999,"edit":`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close torn writer: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = j2.Close() }()

	var replayed []int64
	err = j2.Replay(func(_ uint64, e Edit) error {
		replayed = append(replayed, e.QueryID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay second: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != 4 {
		t.Fatalf("Replay after torn write=%v, want [4]", replayed)
	}
}
