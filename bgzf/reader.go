package bgzf

import (
	"context"

	"github.com/pkg/errors"
)

// ReaderOptions tunes the resource limits a SliceReader operates under.
// A zero value selects the spec's defaults (MaxWindowSize,
// MaxConcurrentWindows).
type ReaderOptions struct {
	MaxWindowBytes int64
	MaxWindows     int
}

// Stats reports the bookkeeping a SliceReader accumulated while walking a
// slice, for logging and for the P3/P4 conservation invariants.
type Stats struct {
	TotalBytes                int64
	BlocksRead                int
	BytesCompressedConsumed   int64
	BytesUncompressedConsumed int64
	Degraded                  bool
}

// SliceReader drives the BGZF window scheduler and block walker for one
// slice of a BGZF archive, and exposes a Cursor positioned at the slice's
// starting virtual offset.
type SliceReader struct {
	ws     *windowScheduler
	walker *blockWalker
	cursor *Cursor
}

// NewSliceReader opens a reader over slice, fetched through dl. It
// downloads the slice's initial windows, parses the first block's framing,
// inflates it, and seeks to the slice's starting intra-block offset.
func NewSliceReader(ctx context.Context, dl Downloader, slice Slice, opts ReaderOptions) (*SliceReader, error) {
	if slice.Start > slice.End {
		return nil, errors.Errorf("bgzf: slice start %v is after end %v", slice.Start, slice.End)
	}
	bounds := slice.bounds()

	totalBytes := Headroom + (bounds.endCompressed - bounds.startCompressed)
	ws, err := newWindowScheduler(ctx, dl, bounds.startCompressed, totalBytes, opts.MaxWindowBytes, opts.MaxWindows)
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: starting window downloads")
	}

	walker := newBlockWalker(ws, bounds)
	cursor, err := newCursor(walker)
	if err != nil {
		return nil, errors.Wrap(err, "bgzf: reading first block")
	}

	if _, err := cursor.Seek(int64(bounds.startUncompressed)); err != nil {
		return nil, errors.Wrap(err, "bgzf: seeking to slice start")
	}

	return &SliceReader{ws: ws, walker: walker, cursor: cursor}, nil
}

// Cursor returns the reader's tokenizer cursor.
func (r *SliceReader) Cursor() *Cursor { return r.cursor }

// Stats reports the reader's accumulated bookkeeping.
func (r *SliceReader) Stats() Stats {
	return Stats{
		TotalBytes:                r.ws.totalBytes,
		BlocksRead:                r.cursor.inflater.reads,
		BytesCompressedConsumed:   r.walker.consumed,
		BytesUncompressedConsumed: r.cursor.totalUncompressedConsumed(),
		Degraded:                  r.ws.degraded,
	}
}
