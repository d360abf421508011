package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorch/pkg/types"
)

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestNew_DefaultsTable(t *testing.T) {
	s, err := New(&Config{DSN: "postgres://localhost/orch"})
	require.NoError(t, err)
	assert.Equal(t, "status_reports", s.config.Table)
	assert.Equal(t, "postgres", s.Name())
}

func TestSink_WriteBeforeOpen(t *testing.T) {
	s, err := New(&Config{DSN: "postgres://localhost/orch"})
	require.NoError(t, err)

	err = s.Write(context.Background(), &types.StatusReport{RunID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}

func TestSink_CloseWithoutOpen(t *testing.T) {
	s, err := New(&Config{DSN: "postgres://localhost/orch"})
	require.NoError(t, err)
	assert.NoError(t, s.Close(context.Background()))
}

func TestNewFactory(t *testing.T) {
	sink, err := NewFactory()(map[string]any{
		"dsn":   "postgres://localhost/orch",
		"table": "custom_reports",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom_reports", sink.config.Table)

	_, err = NewFactory()(map[string]any{})
	require.Error(t, err)
}
