package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_UniqueIDs(t *testing.T) {
	g, err := NewGenerator(1, 1)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestNewGenerator_InvalidIDs(t *testing.T) {
	_, err := NewGenerator(32, 0)
	assert.ErrorIs(t, err, errInvalidMachineID)

	_, err = NewGenerator(0, -1)
	assert.ErrorIs(t, err, errInvalidDataCenter)
}

func TestGenerator_Uninitialized(t *testing.T) {
	var g *Generator
	_, err := g.NextID()
	assert.ErrorIs(t, err, errGeneratorUninitial)
}
