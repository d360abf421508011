package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorch/pkg/types"
)

func sampleReport(processed int) *types.StatusReport {
	return &types.StatusReport{
		RunID:          "run-file",
		State:          types.StateRunning,
		TasksProcessed: processed,
		TasksCompleted: processed,
	}
}

func readBack(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestSink_WriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	s := New(&Config{Path: path, Indent: 2})
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	require.NoError(t, s.Write(context.Background(), sampleReport(10)))

	got := readBack(t, path)
	assert.Equal(t, "run-file", got["run_id"])
	assert.Equal(t, string(types.StateRunning), got["state"])
	assert.EqualValues(t, 10, got["tasks_processed"])
}

func TestSink_WriteReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	s := New(&Config{Path: path})
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Write(context.Background(), sampleReport(10)))
	require.NoError(t, s.Write(context.Background(), sampleReport(20)))

	got := readBack(t, path)
	assert.EqualValues(t, 20, got["tasks_processed"])
}

func TestSink_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(&Config{Path: filepath.Join(dir, "report.json")})
	require.NoError(t, s.Open(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(context.Background(), sampleReport(i)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}

func TestSink_OpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "report.json")
	s := New(&Config{Path: path})
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Write(context.Background(), sampleReport(1)))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestNewFactory(t *testing.T) {
	sink, err := NewFactory()(map[string]any{"path": "/tmp/x.json", "indent": 0})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.json", sink.Path())

	sink, err = NewFactory()(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Path, sink.Path())
}
