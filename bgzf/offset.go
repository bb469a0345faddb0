// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgzf implements a sliced streaming reader for BGZF-compressed
// archives held in an object store. It fetches only the compressed bytes
// covering a requested virtual-offset range, walks the BGZF block framing
// to find and inflate the blocks that contribute to the slice, and exposes
// a cross-block character cursor for tokenizing the decompressed text.
//
// See http://samtools.github.io/hts-specs/SAMv1.pdf section 4.1, "The BGZF
// compression format", for the framing this package interprets.
package bgzf

import "fmt"

// VirtualOffset is a BGZF virtual file offset: the high 48 bits hold the
// compressed byte offset of a block, the low 16 bits hold an uncompressed
// byte offset within that block.
type VirtualOffset uint64

// NewVirtualOffset packs a compressed block offset and an intra-block
// uncompressed offset into a VirtualOffset.
func NewVirtualOffset(compressed int64, uncompressed uint16) VirtualOffset {
	return VirtualOffset(compressed<<16 | int64(uncompressed))
}

// Compressed returns the compressed byte offset component.
func (v VirtualOffset) Compressed() int64 { return int64(v >> 16) }

// Uncompressed returns the intra-block uncompressed byte offset component.
func (v VirtualOffset) Uncompressed() uint16 { return uint16(v & 0xffff) }

func (v VirtualOffset) String() string {
	return fmt.Sprintf("%d<<16|%d", v.Compressed(), v.Uncompressed())
}

// Slice is a contiguous region of a BGZF file, identified by a pair of
// virtual offsets. Start must not be after End.
type Slice struct {
	Start, End VirtualOffset
}

// sliceBounds is the decomposed form of a Slice used internally by the
// block walker and window scheduler.
type sliceBounds struct {
	startCompressed, endCompressed     int64
	startUncompressed, endUncompressed uint16
}

func (s Slice) bounds() sliceBounds {
	return sliceBounds{
		startCompressed:   s.Start.Compressed(),
		startUncompressed: s.Start.Uncompressed(),
		endCompressed:     s.End.Compressed(),
		endUncompressed:   s.End.Uncompressed(),
	}
}
