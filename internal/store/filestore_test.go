package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata-io/veridata/internal/result"
)

func TestFileStoreWritesArtifacts(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, nil)
	require.NoError(t, err)

	ctx := context.Background()
	run, results := sampleRun("run-9")
	sla := &result.SLARecord{Name: "core_sla", Config: map[string]any{"x": 1}}
	require.NoError(t, s.PersistRun(ctx, run, results, sla))
	require.NoError(t, s.PersistStats(ctx, run, []result.ColumnStat{
		{EngineName: "db", Table: "orders", Column: "id", MetricKey: "null_pct", Value: 0.0},
	}))

	var gotRun result.RunMetadata
	data, err := os.ReadFile(filepath.Join(root, "runs", "run-9.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &gotRun))
	assert.Equal(t, run.RunID, gotRun.RunID)
	assert.Equal(t, run.SuiteName, gotRun.SuiteName)

	f, err := os.Open(filepath.Join(root, "results", "run-9.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var lines []result.ValidationResult
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var res result.ValidationResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &res))
		lines = append(lines, res)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, result.StatusFail, lines[1].Status)

	assert.FileExists(t, filepath.Join(root, "slas", "core_sla.json"))
	assert.FileExists(t, filepath.Join(root, "statistics", "run-9.jsonl"))
}
