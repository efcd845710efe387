package util

import (
	"github.com/zeebo/xxh3"
)

// ConsistentIndex computes a stable shard index for the provided string.
func ConsistentIndex(key string, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	return int(xxh3.HashString(key) % uint64(buckets))
}
