package bgzf

import (
	"bytes"

	"github.com/pkg/errors"
)

// Cursor is a cross-block character cursor over the decompressed text of a
// slice. It exposes delimiter-aware read and skip primitives that handle
// tokens straddling BGZF block boundaries transparently, without copying
// when a token lies entirely within one block.
type Cursor struct {
	walker   *blockWalker
	inflater *inflater

	scratch  [MaxBlockSize]byte
	overflow bytes.Buffer

	charPos  int64 // uncompressed-byte position within the current block
	blockLen int64

	uncompressedConsumed int64
	overflowActivations  int // test/debug hook: counts straddling reads
}

func newCursor(walker *blockWalker) (*Cursor, error) {
	c := &Cursor{walker: walker, inflater: newInflater()}
	if err := walker.first(); err != nil {
		return nil, err
	}
	if err := c.loadCurrentBlock(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cursor) loadCurrentBlock() error {
	hdr := c.walker.current()
	payload := c.walker.ws.buf[hdr.payloadStart : hdr.payloadStart+hdr.payloadLen()]
	if err := c.inflater.inflate(payload, hdr.uncompressedLen, c.scratch[:]); err != nil {
		return errors.Wrap(err, "bgzf: inflating block")
	}
	c.blockLen = hdr.uncompressedLen
	c.uncompressedConsumed += hdr.uncompressedLen
	return nil
}

// totalUncompressedConsumed returns the sum of uncompressed bytes the
// inflater has written across all blocks visited so far (invariant P4).
func (c *Cursor) totalUncompressedConsumed() int64 { return c.uncompressedConsumed }

// advanceBlock moves the cursor into the next block, inflating it. It
// returns ok=false once the slice has been fully consumed.
func (c *Cursor) advanceBlock() (ok bool, err error) {
	oldLen := c.blockLen
	if err := c.walker.advance(); err != nil {
		if err == errNoMoreBlocks {
			// Pin the cursor at the end of the exhausted block. charPos is
			// only reduced by oldLen once a next block exists, so here it is
			// at or past oldLen (past it when a Seek overshoots the end of
			// the slice); pinning leaves it exactly at the end.
			c.charPos = oldLen
			return false, nil
		}
		return false, err
	}
	c.charPos -= oldLen
	if err := c.loadCurrentBlock(); err != nil {
		return false, err
	}
	return true, nil
}

// KeepReading reports whether the cursor has more slice content to offer,
// either in the current block or in blocks not yet visited.
func (c *Cursor) KeepReading() bool {
	return c.walker.moreBlocks() || c.charPos < c.blockLen
}

// Seek advances the cursor by n uncompressed bytes, crossing block
// boundaries as needed. It returns KeepReading()'s value after the move.
func (c *Cursor) Seek(n int64) (bool, error) {
	c.charPos += n
	for c.charPos >= c.blockLen {
		ok, err := c.advanceBlock()
		if err != nil {
			return false, err
		}
		if !ok {
			return c.KeepReading(), nil
		}
	}
	return c.KeepReading(), nil
}

// SkipPast advances the cursor past the n-th (1-indexed) occurrence of
// delim, returning false if the slice ends first.
func (c *Cursor) SkipPast(n int, delim byte) (bool, error) {
	remaining := n
	for {
		for c.charPos < c.blockLen {
			ch := c.scratch[c.charPos]
			c.charPos++
			if ch == delim {
				remaining--
				if remaining == 0 {
					return true, nil
				}
			}
		}
		ok, err := c.advanceBlock()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
}

// SkipPastAndCount advances the cursor past the next occurrence of delim,
// returning the number of '\t', '/', '|', or ';' characters seen along the
// way. Callers use 2x this count as the byte stride to the same column of
// the next record, exploiting the fixed VCF column layout of a
// single-sample slice; it is not a general-purpose VCF column scanner (see
// vcf.Summarise).
func (c *Cursor) SkipPastAndCount(delim byte) (uint64, error) {
	var count uint64
	for {
		for c.charPos < c.blockLen {
			ch := c.scratch[c.charPos]
			if ch == '\t' || ch == '/' || ch == '|' || ch == ';' {
				count++
			}
			c.charPos++
			if ch == delim {
				return count, nil
			}
		}
		ok, err := c.advanceBlock()
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
	}
}

// ReadUntilAny reads characters until one of delims is encountered,
// returning the delimiter consumed and a view of the token preceding it. If
// the token lies entirely within the current block the view aliases the
// scratch buffer; if it straddles a block boundary each block's prefix is
// appended to an overflow buffer and the view aliases that instead. If the
// slice ends before any delimiter is found, ReadUntilAny returns a zero
// byte and the accumulated bytes.
func (c *Cursor) ReadUntilAny(delims ...byte) (byte, []byte, error) {
	c.overflow.Reset()
	start := c.charPos
	for {
		for c.charPos < c.blockLen {
			ch := c.scratch[c.charPos]
			if containsByte(delims, ch) {
				var tok []byte
				if c.overflow.Len() == 0 {
					tok = c.scratch[start:c.charPos]
				} else {
					c.overflow.Write(c.scratch[start:c.charPos])
					tok = c.overflow.Bytes()
					debugChecksumOverflow(tok)
				}
				c.charPos++
				return ch, tok, nil
			}
			c.charPos++
		}
		if start < c.blockLen {
			c.overflow.Write(c.scratch[start:c.blockLen])
			c.overflowActivations++
		}
		ok, err := c.advanceBlock()
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, c.overflow.Bytes(), nil
		}
		start = 0
	}
}

// OverflowActivations returns the number of times ReadUntilAny has had to
// fall back to the overflow buffer because a token straddled a block
// boundary. It exists for tests exercising that path (see spec scenario 4).
func (c *Cursor) OverflowActivations() int { return c.overflowActivations }

func containsByte(delims []byte, b byte) bool {
	for _, d := range delims {
		if d == b {
			return true
		}
	}
	return false
}
