package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardFor_StableAndSpread(t *testing.T) {
	m := NewManager(NewCurrent(nil))

	used := make(map[*shard]bool)
	for i := 0; i < 256; i++ {
		id := fmt.Sprintf("session-%d", i)
		s := m.shardFor(id)
		assert.Same(t, s, m.shardFor(id))
		used[s] = true
	}
	assert.Greater(t, len(used), shardCount/2)
}
