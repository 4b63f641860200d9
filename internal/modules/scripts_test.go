package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The shipped sample modules must always load.
func TestSampleModulesLoad(t *testing.T) {
	r := NewRegistry(nil, NewDirSource("../../scripts"))

	mods, err := r.ListAll(context.Background())
	require.NoError(t, err)
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"cat", "greet", "math"}, names)

	got, err := call(t, r, "math", "add", int64(1), int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = call(t, r, "greet", "hello", "tomy")
	require.NoError(t, err)
	assert.Equal(t, "Hello, tomy!", got)

	_, err = call(t, r, "math", "divide", int64(1), int64(0))
	require.Error(t, err)
	assert.Equal(t, "division by zero", err.Error())
}
