// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tree

import "hash/fnv"

// staticBloom is a small bloom filter used to reject paths that definitely
// do not match any registered static route before doing a full trie
// descent. False positives fall through to the real lookup; false
// negatives are impossible.
type staticBloom struct {
	bits  []uint64
	size  uint64
	seeds []uint64
}

func newStaticBloom(expected int) *staticBloom {
	size := uint64(expected*10 + 64) // ~10 bits/element keeps false positives low
	bf := &staticBloom{
		bits:  make([]uint64, (size+63)/64),
		size:  size,
		seeds: []uint64{1, 2, 3},
	}
	return bf
}

func (bf *staticBloom) hash(data string) (h1, h2, h3 uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(data))
	base := h.Sum64()
	return (base ^ bf.seeds[0]) % bf.size, (base ^ bf.seeds[1]) % bf.size, (base ^ bf.seeds[2]) % bf.size
}

func (bf *staticBloom) add(path string) {
	a, b, c := bf.hash(path)
	bf.bits[a/64] |= 1 << (a % 64)
	bf.bits[b/64] |= 1 << (b % 64)
	bf.bits[c/64] |= 1 << (c % 64)
}

// mightContain returns false when path is definitely absent from the static
// route table, and true when it might be present (requiring the caller to
// fall through to an authoritative lookup).
func (bf *staticBloom) mightContain(path string) bool {
	a, b, c := bf.hash(path)
	return bf.bits[a/64]&(1<<(a%64)) != 0 &&
		bf.bits[b/64]&(1<<(b%64)) != 0 &&
		bf.bits[c/64]&(1<<(c%64)) != 0
}

// clone returns a deep copy, used when the tree is rebuilt copy-on-write.
func (bf *staticBloom) clone() *staticBloom {
	cp := &staticBloom{
		bits:  make([]uint64, len(bf.bits)),
		size:  bf.size,
		seeds: bf.seeds,
	}
	copy(cp.bits, bf.bits)
	return cp
}
