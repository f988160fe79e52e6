package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIsDeterministic(t *testing.T) {
	ids := []string{"7500000000000000001", "7500000000000000002", "abc", ""}
	for _, id := range ids {
		first := Shard(id, 16)
		for i := 0; i < 5; i++ {
			require.Equal(t, first, Shard(id, 16), "Shard(%q, 16) not stable", id)
		}
	}
}

func TestShardWithinRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := fmtID(i)
		s := Shard(id, 8)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 8)
	}
}

func TestShardZeroShardCountDefaultsToZero(t *testing.T) {
	assert.Equal(t, 0, Shard("anything", 0))
}

func fmtID(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}
