// Package index implements the hash-keyed index (C10): an ordered set
// mapping digest to an arbitrary uint64 value (the append-only repository
// uses it to map digest to physical record position), built as a
// child-sibling byte trie over an arena of integer-indexed nodes — the
// representation spec.md's own Design Notes (§9, "Pointer graphs →
// arenas+indices") prescribes for a systems language. No file in the
// retrieval pack implements this structure; it follows the spec's
// explicit guidance directly.
package index

import "github.com/hoardstore/hoard/digest"

const noNode int32 = -1

// node is one byte-label step of the trie. child is the index of the first
// node one level deeper reachable from here; sibling is the next node at
// the same level sharing the same parent.
type node struct {
	label   byte
	child   int32
	sibling int32
	has     bool
	value   uint64
}

// Index is an ordered set mapping fixed-width digest keys to uint64
// values. The zero value is not usable; construct with New. A mapped
// value is only ever absent or present — there is no notion of a "null"
// value distinct from absence, matching spec.md §4.10.
type Index struct {
	nodes []node
	root  int32 // index of the first top-level node, or noNode
	count int
}

// New returns an empty Index.
func New() *Index {
	return &Index{root: noNode}
}

func (ix *Index) newNode(label byte) int32 {
	ix.nodes = append(ix.nodes, node{label: label, child: noNode, sibling: noNode})
	return int32(len(ix.nodes) - 1)
}

// findInChain scans the sibling chain starting at head for a node with the
// given label, returning its index or noNode.
func (ix *Index) findInChain(head int32, label byte) int32 {
	for i := head; i != noNode; i = ix.nodes[i].sibling {
		if ix.nodes[i].label == label {
			return i
		}
	}
	return noNode
}

func (ix *Index) lastInChain(head int32) int32 {
	last := head
	for i := ix.nodes[head].sibling; i != noNode; i = ix.nodes[i].sibling {
		last = i
	}
	return last
}

// descend walks key through the trie, creating nodes as needed, and
// returns the index of the final (depth == len(key)) node.
func (ix *Index) descend(key digest.Digest, create bool) int32 {
	parent := noNode // noNode here means "virtual root", distinct from "no node at this level"
	chainHead := ix.root
	var cur int32 = noNode
	for _, b := range key {
		cur = ix.findInChain(chainHead, b)
		if cur == noNode {
			if !create {
				return noNode
			}
			cur = ix.newNode(b)
			if chainHead == noNode {
				if parent == noNode {
					ix.root = cur
				} else {
					ix.nodes[parent].child = cur
				}
			} else {
				last := ix.lastInChain(chainHead)
				ix.nodes[last].sibling = cur
			}
		}
		parent = cur
		chainHead = ix.nodes[cur].child
	}
	return cur
}

// Insert maps key to value, overwriting any previous mapping for key.
// key must not be the zero-length byte slice; digest.Digest is always
// fixed-width so this is never an issue in practice.
func (ix *Index) Insert(key digest.Digest, value uint64) {
	n := ix.descend(key, true)
	if !ix.nodes[n].has {
		ix.count++
	}
	ix.nodes[n].has = true
	ix.nodes[n].value = value
}

// Lookup returns the value mapped to key, and whether key is present.
func (ix *Index) Lookup(key digest.Digest) (uint64, bool) {
	n := ix.descend(key, false)
	if n == noNode || !ix.nodes[n].has {
		return 0, false
	}
	return ix.nodes[n].value, true
}

// Has reports whether key is present in the index.
func (ix *Index) Has(key digest.Digest) bool {
	_, ok := ix.Lookup(key)
	return ok
}

// Len returns the number of distinct keys stored.
func (ix *Index) Len() int {
	return ix.count
}
