package bgzf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomebridge/vcf-slice-summariser/internal/bgzftest"
)

// buildTwoBlockArchive writes two data blocks followed by the BGZF EOF
// marker, and reports the byte offset the second (final) block starts at:
// the slice's End virtual offset should point there, the same convention a
// real BGZF index uses for "end of last block of interest".
func buildTwoBlockArchive(t *testing.T, chunk0, chunk1 []byte) (archive []byte, block1Start int64) {
	t.Helper()
	b := bgzftest.NewBuilder()
	b.WriteBlock(chunk0)
	block1Start = int64(len(b.Bytes()))
	b.WriteBlock(chunk1)
	b.WriteEOFMarker()
	archive = b.Bytes()

	// A real archive's object has Headroom bytes of trailing content (or
	// simply ends, in which case a ranged GET clamps); pad the fixture so
	// a window's lookahead request never runs off the end of this tiny
	// test file and reads back as a spurious short read.
	padded := make([]byte, len(archive)+Headroom)
	copy(padded, archive)
	return padded, block1Start
}

func TestSliceReaderReadsTokensAcrossBlockBoundary(t *testing.T) {
	chunk0, chunk1 := []byte("AAAA\tBBBB\t"), []byte("CCCC\n")
	archive, block1Start := buildTwoBlockArchive(t, chunk0, chunk1)
	dl := &bgzftest.FakeDownloader{Archive: archive}

	slice := Slice{
		Start: NewVirtualOffset(0, 0),
		End:   NewVirtualOffset(block1Start, uint16(len(chunk1))),
	}
	r, err := NewSliceReader(context.Background(), dl, slice, ReaderOptions{})
	require.NoError(t, err)

	cur := r.Cursor()
	delim, tok, err := cur.ReadUntilAny('\t')
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), delim)
	assert.Equal(t, "AAAA", string(tok))

	delim, tok, err = cur.ReadUntilAny('\t')
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), delim)
	assert.Equal(t, "BBBB", string(tok))

	// "CCCC\n" lives in the second block; reaching it requires the cursor
	// to rotate blocks, though the token itself doesn't straddle one.
	delim, tok, err = cur.ReadUntilAny('\n')
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), delim)
	assert.Equal(t, "CCCC", string(tok))

	assert.False(t, cur.KeepReading())
}

func TestSliceReaderStraddlingTokenUsesOverflow(t *testing.T) {
	chunk0, chunk1 := []byte("PRE\tAAAABBB"), []byte("BCCCC\tPOST\n")
	archive, block1Start := buildTwoBlockArchive(t, chunk0, chunk1)
	dl := &bgzftest.FakeDownloader{Archive: archive}

	slice := Slice{
		Start: NewVirtualOffset(0, 0),
		End:   NewVirtualOffset(block1Start, uint16(len(chunk1))),
	}
	r, err := NewSliceReader(context.Background(), dl, slice, ReaderOptions{})
	require.NoError(t, err)
	cur := r.Cursor()

	_, _, err = cur.ReadUntilAny('\t')
	require.NoError(t, err)

	before := cur.OverflowActivations()
	delim, tok, err := cur.ReadUntilAny('\t')
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), delim)
	assert.Equal(t, "AAAABBBBCCCC", string(tok))
	assert.Equal(t, before+1, cur.OverflowActivations())
}

func TestSliceReaderStatsConservation(t *testing.T) {
	chunk0, chunk1 := []byte("AAAA\tBBBB\t"), []byte("CCCC\n")
	archive, block1Start := buildTwoBlockArchive(t, chunk0, chunk1)
	dl := &bgzftest.FakeDownloader{Archive: archive}

	slice := Slice{
		Start: NewVirtualOffset(0, 0),
		End:   NewVirtualOffset(block1Start, uint16(len(chunk1))),
	}
	r, err := NewSliceReader(context.Background(), dl, slice, ReaderOptions{})
	require.NoError(t, err)
	cur := r.Cursor()

	for cur.KeepReading() {
		_, _, err := cur.ReadUntilAny('\n')
		require.NoError(t, err)
	}

	stats := r.Stats()
	assert.False(t, stats.Degraded)
	assert.Equal(t, int64(len(chunk0)+len(chunk1)), stats.BytesUncompressedConsumed)
	// P3: compressed consumption must cover at least through the start of
	// the final block.
	assert.True(t, stats.BytesCompressedConsumed > block1Start)
}

func TestSliceReaderRotatesThroughMoreWindowsThanSlots(t *testing.T) {
	tokens := []string{
		"AAAA", "BBBB", "CCCC", "DDDD", "EEEE", "FFFF",
		"GGGG", "HHHH", "IIII", "JJJJ", "KKKK", "LLLL",
	}
	b := bgzftest.NewBuilder()
	var lastBlockStart int64
	for i, tok := range tokens {
		delim := "\t"
		if i == len(tokens)-1 {
			lastBlockStart = int64(len(b.Bytes()))
			delim = "\n"
		}
		b.WriteBlock([]byte(tok + delim))
	}
	b.WriteEOFMarker()
	archive := b.Bytes()
	padded := make([]byte, len(archive)+Headroom)
	copy(padded, archive)
	dl := &bgzftest.FakeDownloader{Archive: padded}

	lastChunkLen := len(tokens[len(tokens)-1]) + 1 // +1 for the trailing '\n'
	slice := Slice{
		Start: NewVirtualOffset(0, 0),
		End:   NewVirtualOffset(lastBlockStart, uint16(lastChunkLen)),
	}

	// A window far smaller than the slice, with only two physical slots,
	// forces the scheduler to rotate through many more logical windows
	// than slots exist: the scenario spec.md scenario 6 calls out, and the
	// one the final-slot wraparound branch must not clobber (it used to
	// re-launch a download into slot 0 instead of the slot just finished,
	// overwriting a not-yet-consumed window).
	r, err := NewSliceReader(context.Background(), dl, slice, ReaderOptions{MaxWindowBytes: 48, MaxWindows: 2})
	require.NoError(t, err)
	cur := r.Cursor()

	for i, want := range tokens {
		wantDelim := byte('\t')
		if i == len(tokens)-1 {
			wantDelim = '\n'
		}
		delim, tok, err := cur.ReadUntilAny('\t', '\n')
		require.NoError(t, err, "token %d", i)
		assert.Equal(t, wantDelim, delim, "token %d delimiter", i)
		assert.Equal(t, want, string(tok), "token %d", i)
	}
	assert.False(t, cur.KeepReading())

	stats := r.Stats()
	assert.False(t, stats.Degraded)
	var wantBytes int64
	for _, tok := range tokens {
		wantBytes += int64(len(tok)) + 1
	}
	assert.Equal(t, wantBytes, stats.BytesUncompressedConsumed)
}

func TestSliceReaderDownloadFailureSurfacesFramingError(t *testing.T) {
	chunk0, chunk1 := []byte("AAAA\tBBBB\t"), []byte("CCCC\n")
	archive, block1Start := buildTwoBlockArchive(t, chunk0, chunk1)
	dl := &bgzftest.FakeDownloader{Archive: archive, FailNextRange: true}

	slice := Slice{
		Start: NewVirtualOffset(0, 0),
		End:   NewVirtualOffset(block1Start, uint16(len(chunk1))),
	}
	// The first window's download failed; the buffer it should have
	// populated is left zeroed, which has no BGZF magic or BC subfield, so
	// opening the reader surfaces a fatal framing error rather than
	// silently parsing garbage.
	_, err := NewSliceReader(context.Background(), dl, slice, ReaderOptions{})
	assert.Error(t, err)
}
