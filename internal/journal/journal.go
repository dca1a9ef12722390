package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// Op names a catalog edit.
type Op string

const (
	OpUpdateQuery         Op = "update_query"
	OpPutVisualization    Op = "put_visualization"
	OpDeleteVisualization Op = "delete_visualization"
	OpPutWidget           Op = "put_widget"
)

// Edit is one catalog mutation. Ids are reserved before the edit is
// journaled so replaying it is idempotent, except for UpdateQuery which
// bumps the query version again.
type Edit struct {
	Op              Op                   `json:"op"`
	QueryID         int64                `json:"query_id,omitempty"`
	Patch           *model.QueryPatch    `json:"patch,omitempty"`
	Visualization   *model.Visualization `json:"visualization,omitempty"`
	VisualizationID int64                `json:"visualization_id,omitempty"`
	Widget          *model.Widget        `json:"widget,omitempty"`
	At              time.Time            `json:"at"`
}

func (e Edit) validate() error {
	switch e.Op {
	case OpUpdateQuery:
		if e.Patch == nil || e.QueryID == 0 {
			return errors.New("journal: update_query needs query id and patch")
		}
	case OpPutVisualization:
		if e.Visualization == nil || e.Visualization.ID == 0 {
			return errors.New("journal: put_visualization needs a visualization with id")
		}
	case OpDeleteVisualization:
		if e.VisualizationID == 0 {
			return errors.New("journal: delete_visualization needs a visualization id")
		}
	case OpPutWidget:
		if e.Widget == nil || e.Widget.ID == 0 {
			return errors.New("journal: put_widget needs a widget with id")
		}
	default:
		return fmt.Errorf("journal: unknown op %q", e.Op)
	}
	return nil
}

type entry struct {
	Seq  uint64 `json:"seq"`
	Edit Edit   `json:"edit"`
}

// Journal is a write-ahead log of catalog edits: one JSON entry per line,
// with commit progress tracked in a sidecar file. Entries appended but not
// committed are replayed on the next start.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
}

// Open creates or opens the journal at path, dropping committed entries and
// any torn trailing line.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}
	maxSeq, err := compact(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	return &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    max(maxSeq, committed) + 1,
		committed:  committed,
	}, nil
}

// Append durably records an edit and returns its sequence number.
func (j *Journal) Append(e Edit) (uint64, error) {
	if err := e.validate(); err != nil {
		return 0, err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	seq := j.nextSeq
	line, err := json.Marshal(entry{Seq: seq, Edit: e})
	if err != nil {
		return 0, fmt.Errorf("journal: marshal entry: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync entry: %w", err)
	}
	j.nextSeq++
	return seq, nil
}

// Commit marks every entry up to seq as applied.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.committed {
		return nil
	}
	if err := writeCommitted(j.commitPath, seq); err != nil {
		return err
	}
	j.committed = seq
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each uncommitted edit in sequence order and commits
// it when fn succeeds. It stops at the first error.
func (j *Journal) Replay(fn func(seq uint64, e Edit) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	path, committed := j.path, j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	var pending []entry
	if err := scan(f, func(_ []byte, e entry) error {
		if e.Seq > committed {
			pending = append(pending, e)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, e := range pending {
		if err := fn(e.Seq, e.Edit); err != nil {
			return err
		}
		if err := j.Commit(e.Seq); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scan decodes complete entries from r. It stops quietly at a torn or
// malformed line so replay stays deterministic.
func scan(r io.Reader, fn func(line []byte, e entry) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return nil
		}
		var e entry
		if json.Unmarshal(line, &e) != nil {
			return nil
		}
		if ferr := fn(line, e); ferr != nil {
			return ferr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

func writeCommitted(path string, seq uint64) error {
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.WriteString(strconv.FormatUint(seq, 10) + "\n")
		return err
	})
}

// compact rewrites the journal keeping only uncommitted entries and returns
// the highest sequence seen.
func compact(path string, committed uint64) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open for compact: %w", err)
	}
	defer src.Close()

	var maxSeq uint64
	err = writeAtomic(path, func(dst *os.File) error {
		return scan(src, func(line []byte, e entry) error {
			maxSeq = max(maxSeq, e.Seq)
			if e.Seq <= committed {
				return nil
			}
			_, werr := dst.Write(line)
			return werr
		})
	})
	if err != nil {
		return 0, err
	}
	return maxSeq, nil
}

// writeAtomic fills a temp file via fill, syncs it and renames it over path.
func writeAtomic(path string, fill func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", filepath.Base(tmp), err)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: write %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: sync %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: close %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
