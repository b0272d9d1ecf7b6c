package guard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	t.Run("valid rules", func(t *testing.T) {
		g, err := Compile([]Rule{
			{Name: "non_negative", Expression: "!has(state.count) || state.count >= 0.0"},
			{Name: "monotonic", Expression: "!has(prev.version) || state.version >= prev.version"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, g.Len())
		assert.Equal(t, []string{"non_negative", "monotonic"}, g.Names())
	})

	t.Run("empty rule set", func(t *testing.T) {
		g, err := Compile(nil)
		require.NoError(t, err)
		assert.NoError(t, g.Check(nil, map[string]any{"x": 1}))
	})

	tests := []struct {
		name    string
		rules   []Rule
		wantErr string
	}{
		{name: "missing name", rules: []Rule{{Expression: "true"}}, wantErr: "name cannot be empty"},
		{name: "missing expression", rules: []Rule{{Name: "r"}}, wantErr: "expression cannot be empty"},
		{name: "duplicate", rules: []Rule{{Name: "r", Expression: "true"}, {Name: "r", Expression: "true"}}, wantErr: "duplicate name"},
		{name: "syntax error", rules: []Rule{{Name: "r", Expression: "state.count >="}}, wantErr: `rule "r"`},
		{name: "unknown variable", rules: []Rule{{Name: "r", Expression: "other.count > 0"}}, wantErr: "undeclared reference"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGuard_Check(t *testing.T) {
	g, err := Compile([]Rule{
		{Name: "non_negative", Expression: "!has(state.count) || state.count >= 0.0", Message: "count must not go negative"},
		{Name: "name_required", Expression: `has(state.name) && state.name != ""`},
	})
	require.NoError(t, err)

	t.Run("passes", func(t *testing.T) {
		assert.NoError(t, g.Check(nil, map[string]any{"count": 3.0, "name": "x"}))
	})

	t.Run("first failing rule rejects", func(t *testing.T) {
		err := g.Check(nil, map[string]any{"count": -1.0, "name": ""})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRejected))

		var rejected *RejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "non_negative", rejected.Rule)
		assert.Contains(t, err.Error(), "count must not go negative")
	})

	t.Run("second rule", func(t *testing.T) {
		err := g.Check(nil, map[string]any{"count": 1.0})

		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "name_required", rejected.Rule)
		assert.Equal(t, `transition rejected by rule "name_required"`, err.Error())
	})
}

func TestGuard_CheckUsesPrev(t *testing.T) {
	g, err := Compile([]Rule{
		{Name: "monotonic", Expression: "!has(prev.version) || state.version >= prev.version"},
	})
	require.NoError(t, err)

	assert.NoError(t, g.Check(map[string]any{"version": 1.0}, map[string]any{"version": 2.0}))
	assert.ErrorIs(t, g.Check(map[string]any{"version": 2.0}, map[string]any{"version": 1.0}), ErrRejected)
}

func TestGuard_NonBoolResult(t *testing.T) {
	g, err := Compile([]Rule{{Name: "not_bool", Expression: "state"}})
	require.NoError(t, err)

	err = g.Check(nil, map[string]any{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "expected bool")
}

func TestGuard_EvaluationError(t *testing.T) {
	g, err := Compile([]Rule{{Name: "missing_key", Expression: "state.count > 0.0"}})
	require.NoError(t, err)

	err = g.Check(nil, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation failed")
}

func TestGuard_Nil(t *testing.T) {
	var g *Guard
	assert.NoError(t, g.Check(nil, nil))
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.Names())
}
