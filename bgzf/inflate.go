package bgzf

import (
	"bytes"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// MaxBlockSize is the largest possible uncompressed size of a single BGZF
// block, and the size of the scratch buffer each Cursor inflates into.
const MaxBlockSize = 65536

// inflater performs raw deflate (no zlib/gzip wrapper) decompression of one
// BGZF block's payload at a time into a caller-supplied scratch buffer. A
// single inflater is reused across blocks: the underlying decompressor
// state is created once and reset for each new payload, matching the
// source's inflateInit2/inflateReset pairing.
type inflater struct {
	rc    io.ReadCloser
	reads int
}

func newInflater() *inflater { return &inflater{} }

// inflate decompresses the first uncompressedLen bytes of payload's deflate
// stream into scratch[:uncompressedLen]. uncompressedLen may be less than the
// stream's full length (the slice's final block); the rest is not read. A
// short read or a decompression error is fatal.
func (inf *inflater) inflate(payload []byte, uncompressedLen int64, scratch []byte) error {
	start := time.Now()

	if inf.rc == nil {
		inf.rc = flate.NewReader(bytes.NewReader(payload))
	} else if resetter, ok := inf.rc.(flate.Resetter); ok {
		if err := resetter.Reset(bytes.NewReader(payload), nil); err != nil {
			return errors.Wrap(err, "bgzf: resetting inflater")
		}
	} else {
		inf.rc = flate.NewReader(bytes.NewReader(payload))
	}

	n, err := io.ReadFull(inf.rc, scratch[:uncompressedLen])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return errors.Wrap(err, "bgzf: inflate failed")
	}
	if int64(n) != uncompressedLen {
		return errors.Errorf("bgzf: inflate produced %d bytes, expected %d", n, uncompressedLen)
	}

	inf.reads++
	if inf.reads <= 10 || (inf.reads >= 15000 && inf.reads <= 15010) {
		vlog.Infof("bgzf: inflate took %s to inflate %d bytes into %d bytes on read %d",
			time.Since(start), len(payload), uncompressedLen, inf.reads)
	}
	return nil
}
