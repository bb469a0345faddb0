package bgzf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomebridge/vcf-slice-summariser/internal/bgzftest"
)

func TestParseFixedFraming(t *testing.T) {
	b := bgzftest.NewBuilder()
	b.WriteBlock([]byte("hello, world"))
	b.WriteEOFMarker()
	buf := b.Bytes()

	hdr, err := parseFixedFraming(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), hdr.blockStart)
	assert.True(t, hdr.nextBlockStart > 0)
	assert.True(t, hdr.nextBlockStart < int64(len(buf)))

	second, err := parseFixedFraming(buf, hdr.nextBlockStart)
	require.NoError(t, err)
	assert.Equal(t, int64(len(buf)), second.nextBlockStart)
}

func TestParseFixedFramingMissingMagicLogsAndContinues(t *testing.T) {
	b := bgzftest.NewBuilder()
	b.CorruptMagic = true
	b.WriteBlock([]byte("still framed correctly"))
	buf := b.Bytes()

	hdr, err := parseFixedFraming(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(buf)), hdr.nextBlockStart)
}

func TestParseFixedFramingMissingBCIsFatal(t *testing.T) {
	b := bgzftest.NewBuilder()
	b.OmitBCSubfield = true
	b.WriteBlock([]byte("no bc subfield here"))
	buf := b.Bytes()

	_, err := parseFixedFraming(buf, 0)
	assert.Error(t, err)
}

func TestFindBSIZESkipsPrecedingSubfields(t *testing.T) {
	// SI1/SI2 = 'Z','Z', SLEN=4, four bytes of junk, then the real BC
	// subfield, matching a gzip extra field with multiple subfields.
	field := []byte{
		'Z', 'Z', 4, 0, 0xAA, 0xBB, 0xCC, 0xDD,
		'B', 'C', 2, 0, 0x34, 0x12,
	}
	bsize, ok := findBSIZE(field, 0, int64(len(field)))
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), bsize)
}

func TestFindBSIZEAbsent(t *testing.T) {
	field := []byte{'Z', 'Z', 2, 0, 0, 0}
	_, ok := findBSIZE(field, 0, int64(len(field)))
	assert.False(t, ok)
}
