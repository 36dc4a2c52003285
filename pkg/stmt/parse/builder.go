// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package parse

// Builder assembles a fragment list for a rewritten statement. It only
// appends: Append starts a new fragment and Merge extends the last one, so
// every boundary between two fragments stays a placeholder.
type Builder struct {
	frags [][]byte
	// owned is the index of the last fragment allocated by the builder. Only
	// that fragment may be extended in place.
	owned int
}

func NewBuilder(capacity int) *Builder {
	return &Builder{
		frags: make([][]byte, 0, capacity),
		owned: -1,
	}
}

// Append adds f as a new fragment. f is shared, not copied.
func (b *Builder) Append(f []byte) {
	b.frags = append(b.frags, f)
}

// Merge concatenates f to the last fragment.
func (b *Builder) Merge(f []byte) {
	last := len(b.frags) - 1
	if last < 0 {
		b.frags = append(b.frags, append([]byte(nil), f...))
		b.owned = 0
		return
	}
	if b.owned != last {
		merged := make([]byte, 0, 2*(len(b.frags[last])+len(f)))
		b.frags[last] = append(merged, b.frags[last]...)
		b.owned = last
	}
	b.frags[last] = append(b.frags[last], f...)
}

// AppendAll adds every fragment of frags.
func (b *Builder) AppendAll(frags [][]byte) {
	for _, f := range frags {
		b.Append(f)
	}
}

// MergeAll merges the first fragment of frags and appends the others, i.e.
// it splices a statement part whose first fragment continues the last one.
func (b *Builder) MergeAll(frags [][]byte) {
	if len(frags) == 0 {
		return
	}
	b.Merge(frags[0])
	b.AppendAll(frags[1:])
}

// Len returns the number of fragments so far.
func (b *Builder) Len() int {
	return len(b.frags)
}

// Fragments returns the fragment list. The builder must not be used afterwards.
func (b *Builder) Fragments() [][]byte {
	return b.frags
}
