package bgzf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

const (
	// Headroom is the size of the dead zone at the head of the rotating
	// buffer. It is exactly one maximal BGZF block, which gives the window
	// scheduler room to copy a block that straddles the final window back
	// to the head of the arena on rotation.
	Headroom = 65536

	// blockHeaderLen is the number of fixed-position bytes preceding the
	// extra-field block (ID1, ID2, CM, FLG, MTIME(4), XFL, OS, XLEN).
	blockHeaderLen = 12
	xlenOffset     = 10

	// gzipTrailerLen is the size of the CRC32 + ISIZE trailer following the
	// deflate payload in every gzip member.
	gzipTrailerLen = 8
)

var bgzfMagic = [4]byte{0x1f, 0x8b, 0x08, 0x04}

// blockHeader describes the framing of a single BGZF block within the
// rotating buffer. All offsets are absolute positions in the arena.
type blockHeader struct {
	blockStart      int64
	xlen            uint16
	payloadStart    int64
	nextBlockStart  int64
	uncompressedLen int64
}

func (h blockHeader) payloadLen() int64 {
	return h.nextBlockStart - h.payloadStart - gzipTrailerLen
}

// parseFixedFraming reads the BGZF header and extra-field BC subfield for
// the block starting at blockStart in buf, determining the block's total
// compressed size (BSIZE) and its deflate payload's start offset. It does
// not set uncompressedLen; the caller fills that in once it knows whether
// this is the slice's final block.
func parseFixedFraming(buf []byte, blockStart int64) (blockHeader, error) {
	if blockStart+blockHeaderLen > int64(len(buf)) {
		return blockHeader{}, errors.Errorf("bgzf: block at %d: buffer too short for header", blockStart)
	}
	if !bytes.Equal(buf[blockStart:blockStart+4], bgzfMagic[:]) {
		// The source logs and continues using current XLEN-based framing;
		// see the framing edge cases in the design notes.
		vlog.Errorf("bgzf: block at %d missing BGZF magic, continuing with XLEN-based framing", blockStart)
	}

	xlen := binary.LittleEndian.Uint16(buf[blockStart+xlenOffset : blockStart+xlenOffset+2])
	payloadStart := blockStart + blockHeaderLen + int64(xlen)
	if payloadStart > int64(len(buf)) {
		return blockHeader{}, errors.Errorf("bgzf: block at %d: XLEN %d overruns buffer", blockStart, xlen)
	}

	bsize, ok := findBSIZE(buf, blockStart+blockHeaderLen, payloadStart)
	if !ok {
		// Unlike a missing magic, an absent BC subfield leaves nextBlockStart
		// undefined; the reimplementation treats this as fatal rather than
		// continuing with nonsensical framing (see DESIGN.md, Open Question 1).
		return blockHeader{}, errors.Errorf("bgzf: block at %d: missing BC extra subfield", blockStart)
	}

	return blockHeader{
		blockStart:     blockStart,
		xlen:           xlen,
		payloadStart:   payloadStart,
		nextBlockStart: blockStart + int64(bsize) + 1,
	}, nil
}

// findBSIZE walks the gzip extra-field subfields in buf[fieldStart:fieldEnd]
// looking for the BGZF "BC" subfield (SI1='B', SI2='C', SLEN=2) and returns
// its payload, the BSIZE value (total compressed block size minus one).
func findBSIZE(buf []byte, fieldStart, fieldEnd int64) (uint16, bool) {
	for fieldStart+4 <= fieldEnd {
		slen := binary.LittleEndian.Uint16(buf[fieldStart+2 : fieldStart+4])
		if buf[fieldStart] == 'B' && buf[fieldStart+1] == 'C' && slen == 2 {
			return binary.LittleEndian.Uint16(buf[fieldStart+4 : fieldStart+6]), true
		}
		fieldStart += 4 + int64(slen)
	}
	return 0, false
}
