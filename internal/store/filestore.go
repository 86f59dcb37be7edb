package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/pkg/logger"
)

// FileStore serializes runs as JSON artifacts under a root directory:
// runs/<run_id>.json, results/<run_id>.jsonl, slas/<sla_name>.json and
// statistics/<run_id>.jsonl.
type FileStore struct {
	root string
	log  *logger.Logger
}

// NewFileStore prepares the artifact directories under root.
func NewFileStore(root string, log *logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	for _, dir := range []string{"runs", "results", "slas", "statistics"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("prepare artifact store: %w", err)
		}
	}
	return &FileStore{root: root, log: log}, nil
}

// PersistRun writes the run artifact and one result per line.
func (s *FileStore) PersistRun(ctx context.Context, run result.RunMetadata, results []result.ValidationResult, sla *result.SLARecord) error {
	if err := s.writeJSON(filepath.Join("runs", run.RunID+".json"), run); err != nil {
		return err
	}
	if err := s.writeLines(filepath.Join("results", run.RunID+".jsonl"), len(results), func(i int) any {
		return results[i]
	}); err != nil {
		return err
	}
	if sla != nil {
		if err := s.writeJSON(filepath.Join("slas", sla.Name+".json"), sla); err != nil {
			return err
		}
	}
	s.log.WithField("run_id", run.RunID).Debugf("wrote artifacts for %d result(s)", len(results))
	return nil
}

// PersistStats writes one statistic per line.
func (s *FileStore) PersistStats(ctx context.Context, run result.RunMetadata, stats []result.ColumnStat) error {
	return s.writeLines(filepath.Join("statistics", run.RunID+".jsonl"), len(stats), func(i int) any {
		return stats[i]
	})
}

func (s *FileStore) writeJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return os.WriteFile(filepath.Join(s.root, rel), append(data, '\n'), 0644)
}

func (s *FileStore) writeLines(rel string, n int, item func(int) any) error {
	f, err := os.Create(filepath.Join(s.root, rel))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		if err := enc.Encode(item(i)); err != nil {
			f.Close()
			return fmt.Errorf("encode line %d of %s: %w", i, rel, err)
		}
	}
	return f.Close()
}
