// Package bgzftest builds small, precisely-controlled BGZF byte streams for
// tests of the bgzf and vcf packages, without depending on the network or a
// real archive. It is adapted from the production BGZF block writer: same
// header layout and BC-subfield patching, but building one block at a time
// from caller-supplied uncompressed chunks so tests can pick exact block
// boundaries (including boundaries that land mid-token).
package bgzftest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/flate"

	"github.com/genomebridge/vcf-slice-summariser/storage"
)

var errShortRead = errors.New("bgzftest: simulated download failure")

const (
	blockHeaderLen = 12
	bcSubfieldLen  = 6 // SI1,SI2,SLEN(2),BSIZE(2)
	gzipTrailerLen = 8
)

// bgzfExtra is the gzip Extra field every BGZF block carries: subfield ids
// 'B','C', subfield length 2, followed by the two-byte BSIZE placeholder.
var bgzfExtra = [bcSubfieldLen]byte{'B', 'C', 2, 0, 0, 0}

// Builder accumulates BGZF blocks into a byte stream.
type Builder struct {
	buf bytes.Buffer

	// CorruptMagic, if set, zeroes the magic bytes of the next block
	// written, for exercising the "framing violation, logged and
	// continues" path.
	CorruptMagic bool
	// OmitBCSubfield, if set, writes a zero-length Extra field on the next
	// block instead of the BC subfield, for exercising the fatal
	// missing-BC path.
	OmitBCSubfield bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// WriteBlock compresses chunk as a single BGZF block and appends it to the
// stream. chunk must be at most 65536 bytes.
func (b *Builder) WriteBlock(chunk []byte) {
	var compressed bytes.Buffer
	fw, _ := flate.NewWriter(&compressed, flate.DefaultCompression)
	_, _ = fw.Write(chunk)
	_ = fw.Close()

	extra := bgzfExtra
	if b.OmitBCSubfield {
		extra = [bcSubfieldLen]byte{}
	}
	extraLen := len(extra)
	if b.OmitBCSubfield {
		extraLen = 0
	}

	var hdr [blockHeaderLen]byte
	hdr[0], hdr[1], hdr[2], hdr[3] = 0x1f, 0x8b, 0x08, 0x04
	if b.CorruptMagic {
		hdr[0] = 0x00
	}
	// hdr[4:8] MTIME, hdr[8] XFL, hdr[9] OS left zero.
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(extraLen))

	blockLen := blockHeaderLen + extraLen + compressed.Len() + gzipTrailerLen
	if !b.OmitBCSubfield {
		binary.LittleEndian.PutUint16(extra[4:6], uint16(blockLen-1))
	}

	b.buf.Write(hdr[:])
	b.buf.Write(extra[:extraLen])
	b.buf.Write(compressed.Bytes())

	var trailer [gzipTrailerLen]byte
	binary.LittleEndian.PutUint32(trailer[0:4], 0) // CRC32 unchecked by the reader
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(chunk)))
	b.buf.Write(trailer[:])

	b.CorruptMagic = false
	b.OmitBCSubfield = false
}

// WriteEOFMarker appends the standard empty-payload BGZF terminator block.
func (b *Builder) WriteEOFMarker() {
	b.WriteBlock(nil)
}

// Bytes returns the accumulated stream.
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// FakeDownloader is a bgzf.Downloader backed by an in-memory archive, for
// tests that need to exercise the window scheduler without real network
// calls. FailNextRange, if set, makes the next StartRange call report a
// failed download instead of copying bytes, for exercising the "download
// failure" degraded path.
type FakeDownloader struct {
	Archive       []byte
	FailNextRange bool
}

// StartRange implements bgzf.Downloader by copying directly out of Archive;
// the "download" is already complete by the time StartRange returns.
func (f *FakeDownloader) StartRange(_ context.Context, firstByte, numBytes int64, dest []byte) *storage.RangeDownload {
	if numBytes <= 0 {
		return nil
	}
	if f.FailNextRange {
		f.FailNextRange = false
		return storage.Completed(0, errShortRead)
	}
	n := copy(dest[:numBytes], f.Archive[firstByte:firstByte+numBytes])
	return storage.Completed(int64(n), nil)
}
