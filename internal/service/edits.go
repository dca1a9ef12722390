package service

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/duckdb"
	"github.com/tinytelemetry/queryview/internal/journal"
)

// record journals an edit, applies it and commits it. The entry is committed
// even when the store rejects the edit so a bad edit never blocks replay.
func (s *Service) record(ctx context.Context, e journal.Edit) error {
	if s.journal == nil {
		return s.apply(ctx, e)
	}
	seq, err := s.journal.Append(e)
	if err != nil {
		return fmt.Errorf("service: journal %s: %w", e.Op, err)
	}
	applyErr := s.apply(ctx, e)
	if err := s.journal.Commit(seq); err != nil {
		log.Printf("service: commit journal seq %d: %v", seq, err)
	}
	return applyErr
}

func (s *Service) apply(ctx context.Context, e journal.Edit) error {
	var err error
	switch e.Op {
	case journal.OpUpdateQuery:
		_, err = s.store.UpdateQuery(ctx, e.QueryID, *e.Patch)
	case journal.OpPutVisualization:
		_, err = s.store.PutVisualization(ctx, *e.Visualization)
	case journal.OpDeleteVisualization:
		err = s.store.DeleteVisualization(ctx, e.VisualizationID)
	case journal.OpPutWidget:
		_, err = s.store.PutWidget(ctx, *e.Widget)
	default:
		err = fmt.Errorf("service: unknown edit %q", e.Op)
	}
	return err
}

func (s *Service) replay(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	replayed := 0
	err := s.journal.Replay(func(seq uint64, e journal.Edit) error {
		if err := s.apply(ctx, e); err != nil {
			if errors.Is(err, duckdb.ErrNotFound) {
				log.Printf("service: replay seq %d (%s): skipping: %v", seq, e.Op, err)
				return nil
			}
			return fmt.Errorf("service: replay seq %d: %w", seq, err)
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}
	if replayed > 0 {
		log.Printf("service: replayed %d catalog edits", replayed)
	}
	return nil
}
