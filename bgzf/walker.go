package bgzf

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// errNoMoreBlocks is returned internally by blockWalker.advance when the
// slice has no further blocks; it is not a user-visible error.
var errNoMoreBlocks = errors.New("bgzf: no more blocks in slice")

// blockWalker interprets BGZF block framing one block at a time, pulling
// bytes from a windowScheduler's rotating buffer and tracking how much of
// the slice's compressed range has been consumed.
type blockWalker struct {
	ws     *windowScheduler
	bounds sliceBounds

	consumed int64 // totalCompressedConsumed
	cur      blockHeader
}

func newBlockWalker(ws *windowScheduler, bounds sliceBounds) *blockWalker {
	return &blockWalker{ws: ws, bounds: bounds}
}

// finalSpan is endCompressed - startCompressed, the last compressed byte
// offset (relative to the slice start) that still contributes to the slice.
func (w *blockWalker) finalSpan() int64 {
	return w.bounds.endCompressed - w.bounds.startCompressed
}

// moreBlocks reports whether any bytes beyond the current block remain to
// be visited.
func (w *blockWalker) moreBlocks() bool {
	return w.consumed <= w.finalSpan()
}

// first parses the framing of the slice's first block, located at the head
// of the rotating buffer (offset Headroom).
func (w *blockWalker) first() error {
	hdr, err := w.readHeaderAt(Headroom)
	if err != nil {
		return err
	}
	w.cur = hdr
	return nil
}

// current returns the framing of the block the cursor is currently inside.
func (w *blockWalker) current() blockHeader { return w.cur }

// advance moves to the next block in the slice, rotating the window
// scheduler's buffer if the new block crosses a window boundary. It
// returns errNoMoreBlocks if the slice has been fully walked.
func (w *blockWalker) advance() error {
	if !w.moreBlocks() {
		return errNoMoreBlocks
	}
	newStart, err := w.ws.rotate(w.cur.nextBlockStart)
	if err != nil {
		return err
	}
	hdr, err := w.readHeaderAt(newStart)
	if err != nil {
		return err
	}
	w.cur = hdr
	return nil
}

// readHeaderAt parses the fixed framing for the block at blockStart and
// fills in its uncompressed length: ISIZE, read from the block's trailer,
// unless accounting for this block pushes totalCompressedConsumed past the
// slice's final byte, in which case the block is the slice's final block
// and its uncompressed length is the caller-supplied endUncompressed.
func (w *blockWalker) readHeaderAt(blockStart int64) (blockHeader, error) {
	hdr, err := parseFixedFraming(w.ws.buf, blockStart)
	if err != nil {
		return blockHeader{}, err
	}
	w.consumed += hdr.nextBlockStart - hdr.blockStart

	if w.consumed > w.finalSpan() {
		hdr.uncompressedLen = int64(w.bounds.endUncompressed)
		return hdr, nil
	}
	if hdr.nextBlockStart-4 < 0 || hdr.nextBlockStart > int64(len(w.ws.buf)) {
		return blockHeader{}, errors.Errorf("bgzf: block at %d: ISIZE trailer out of bounds", blockStart)
	}
	hdr.uncompressedLen = int64(binary.LittleEndian.Uint32(w.ws.buf[hdr.nextBlockStart-4 : hdr.nextBlockStart]))
	return hdr, nil
}
