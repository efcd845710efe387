package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsistentIndex(t *testing.T) {
	assert.Equal(t, 0, ConsistentIndex("anything", 0))
	assert.Equal(t, 0, ConsistentIndex("anything", 1))

	for _, key := range []string{"/a.js", "/b.js", "/styles/site.css"} {
		idx := ConsistentIndex(key, 7)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 7)
		assert.Equal(t, idx, ConsistentIndex(key, 7))
	}
}
