// Package ringhash implements a consistent ring hash used to pick a notification queue for a realm:
// https://en.wikipedia.org/wiki/Consistent_hashing
package ringhash

import (
	"cmp"
	"encoding/ascii85"
	"hash/crc32"
	"hash/fnv"
	"slices"
	"strconv"
)

// Hash is a signature of a hash function used by the package.
type Hash func(data []byte) uint32

type point struct {
	key  string
	hash uint32
}

// Ring is a set of keys (queue names) placed on a hash ring with a number of replicas each.
type Ring struct {
	points []point // Sorted by hash, then by key.
	keys   []string

	signature string
	replicas  int
	hashfunc  Hash
}

// New initializes an empty ring with the given number of replicas and a hash function.
// If the hash function is nil, crc32.ChecksumIEEE is used.
func New(replicas int, fn Hash) *Ring {
	if fn == nil {
		fn = crc32.ChecksumIEEE
	}
	if replicas <= 0 {
		replicas = 1
	}
	return &Ring{replicas: replicas, hashfunc: fn}
}

// NewShards creates a ring of count keys named "<prefix>-0" .. "<prefix>-<count-1>".
func NewShards(prefix string, count, replicas int) *Ring {
	ring := New(replicas, nil)
	names := make([]string, count)
	for i := range names {
		names[i] = prefix + "-" + strconv.Itoa(i)
	}
	ring.Add(names...)
	return ring
}

// Len returns the number of points on the ring (keys times replicas).
func (ring *Ring) Len() int {
	return len(ring.points)
}

// Keys returns the keys added to the ring in the order they were added.
func (ring *Ring) Keys() []string {
	return slices.Clone(ring.keys)
}

// Add places keys on the ring.
func (ring *Ring) Add(keys ...string) {
	for _, key := range keys {
		ring.keys = append(ring.keys, key)
		for i := 0; i < ring.replicas; i++ {
			ring.points = append(ring.points, point{
				hash: ring.hashfunc([]byte(strconv.Itoa(i) + key)),
				key:  key,
			})
		}
	}
	// Weak hash functions collide: ties are broken by key so that the order
	// does not depend on the order of Add calls.
	slices.SortFunc(ring.points, func(a, b point) int {
		if c := cmp.Compare(a.hash, b.hash); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	ring.signature = ring.sign()
}

func (ring *Ring) sign() string {
	hash := fnv.New128a()
	b := make([]byte, 4)
	for _, p := range ring.points {
		b[0] = byte(p.hash)
		b[1] = byte(p.hash >> 8)
		b[2] = byte(p.hash >> 16)
		b[3] = byte(p.hash >> 24)
		hash.Write(b)
		hash.Write([]byte(p.key))
	}

	sum := hash.Sum(nil)
	dst := make([]byte, ascii85.MaxEncodedLen(len(sum)))
	ascii85.Encode(dst, sum)
	return string(dst)
}

// Get returns the key closest to the given value clockwise. Empty string if the ring is empty.
func (ring *Ring) Get(value string) string {
	if len(ring.points) == 0 {
		return ""
	}

	hash := ring.hashfunc([]byte(value))
	idx, _ := slices.BinarySearchFunc(ring.points, point{hash: hash, key: value}, func(p, target point) int {
		if c := cmp.Compare(p.hash, target.hash); c != 0 {
			return c
		}
		return cmp.Compare(p.key, target.key)
	})

	// Wrapped around.
	if idx == len(ring.points) {
		idx = 0
	}
	return ring.points[idx].key
}

// Signature returns the ring's hash signature. Rings with the same keys, replicas
// and hash function have identical signatures.
func (ring *Ring) Signature() string {
	return ring.signature
}
