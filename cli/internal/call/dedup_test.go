package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupSet(t *testing.T) {
	s := newDedupSet[string](3)

	assert.True(t, s.add("a"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.True(t, s.add("c"))
	assert.Equal(t, 3, s.len())

	assert.True(t, s.add("d"), "adding past capacity evicts the oldest key")
	assert.Equal(t, 3, s.len())
	assert.False(t, s.has("a"))
	assert.True(t, s.has("b"))
	assert.True(t, s.has("d"))

	assert.True(t, s.add("a"), "an evicted key can be added again")

	s.remove("c")
	assert.False(t, s.has("c"))
	assert.Equal(t, 2, s.len())
	s.remove("c")
	assert.Equal(t, 2, s.len())
	assert.True(t, s.add("c"), "a removed key can be added again")

	s.reset()
	assert.Equal(t, 0, s.len())
	assert.False(t, s.has("d"))
	assert.True(t, s.add("d"))
}
