package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID()
	}
	return ids
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newMockStep("a")))

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newMockStep("")))
	assert.Error(t, r.Register(newMockStep("a")), "duplicate ID")

	assert.True(t, r.Has("a"))
	assert.Equal(t, 1, r.Count())

	_, err := r.Get("missing")
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))
}

func TestRegistry_GetDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		want    []string
		wantErr string
	}{
		{
			name:  "registration order breaks ties",
			steps: []Step{newMockStep("x"), newMockStep("y"), newMockStep("z")},
			want:  []string{"x", "y", "z"},
		},
		{
			name: "dependencies first",
			steps: []Step{
				newMockStep("finance", "prepare", "bonus"),
				newMockStep("prepare"),
				newMockStep("bonus"),
				newMockStep("effects", "bonus"),
			},
			want: []string{"prepare", "bonus", "finance", "effects"},
		},
		{
			name:    "missing dependency",
			steps:   []Step{newMockStep("a", "ghost")},
			wantErr: "non-existent",
		},
		{
			name:    "cycle",
			steps:   []Step{newMockStep("a", "b"), newMockStep("b", "a")},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, s := range tt.steps {
				require.NoError(t, r.Register(s))
			}
			ordered, err := r.GetDependencyOrder()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Error(t, r.ValidateDependencies())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, stepIDs(ordered))
		})
	}
}

func TestRegistry_Plan(t *testing.T) {
	r := NewRegistry()
	for _, s := range []Step{
		newMockStep("a"),
		newMockStep("b", "a"),
		newMockStep("c", "b"),
		newMockStep("d", "a"),
	} {
		require.NoError(t, r.Register(s))
	}

	plan, err := r.Plan([]string{"d", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, stepIDs(plan))

	plan, err = r.Plan(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, stepIDs(plan))

	_, err = r.Plan([]string{"zzz"})
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))

	assert.Equal(t, []string{"b", "d"}, stepIDs(r.GetDependents("a")))
}
