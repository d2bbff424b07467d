// Package shard provides partition key generation for DynamoDB tables.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// MaxKeyLen is the longest record key used as a partition key verbatim.
// DynamoDB caps partition keys at 2048 bytes.
const MaxKeyLen = 1024

// PartitionKey computes the partition key for a record key.
// Keys up to MaxKeyLen bytes are used as they are. Longer keys are replaced
// by a 128-bit hash prefixed with the key separator, which no valid key
// starts with.
func PartitionKey(key string) string {
	if len(key) <= MaxKeyLen {
		return key
	}
	h := sha256.Sum256([]byte(key))
	return "." + hex.EncodeToString(h[:16])
}

// Of returns the shard a key falls in out of numShards.
// With numShards<=1, every key falls in shard 0.
func Of(key string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(numShards))
}

// Label formats a shard number the way it appears in log output.
func Label(shard int) string {
	return fmt.Sprintf("%02x", shard)
}
