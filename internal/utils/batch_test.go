// internal/utils/batch_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 10))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 0))
	assert.Nil(t, Chunk([]int{}, 3))

	assert.Equal(t, 3, BatchCount(5, 2))
	assert.Equal(t, 1, BatchCount(5, 0))
	assert.Equal(t, 0, BatchCount(0, 2))
}
