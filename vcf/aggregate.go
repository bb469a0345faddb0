// Package vcf extracts the AC (alternate allele count) and AN (total allele
// number) INFO fields from a slice of BGZF-compressed VCF text, exposed
// through a bgzf.Cursor. It does not parse VCF generally: only record
// framing (tab/semicolon delimiters) and the two INFO keys this system
// cares about.
package vcf

import (
	"bytes"
	"strconv"

	"v.io/x/lib/vlog"

	"github.com/genomebridge/vcf-slice-summariser/bgzf"
)

var (
	acPrefix = []byte("AC=")
	anPrefix = []byte("AN=")
	comma    = []byte(",")
)

// infoColumn is the number of tab-separated columns preceding INFO in a VCF
// data line (CHROM, POS, ID, REF, ALT, QUAL, FILTER), i.e. INFO's 0-indexed
// column number.
const infoColumn = 7

// Counter accumulates the aggregate counts for a slice.
type Counter struct {
	// NumVariants is the number of alternate alleles seen: one per AC
	// value, plus one more per comma in a multi-allelic AC.
	NumVariants uint64
	// NumCalls is the sum of every record's AN value.
	NumCalls uint64
	// RecordsRead is the number of complete records counted. A record
	// truncated by end-of-slice is not included.
	RecordsRead uint64
}

// Summarise walks every VCF record reachable from cur's current position to
// the end of its slice, accumulating AC/AN counts. cur must already be
// positioned at the start of the slice's first record (a freshly opened
// bgzf.SliceReader's cursor satisfies this).
func Summarise(cur *bgzf.Cursor) (Counter, error) {
	var c Counter

	if err := c.addRecord(cur); err != nil {
		return c, err
	}

	// The remaining columns of a single-sample VCF (FORMAT + one sample)
	// are the same width on every record, so the byte distance from one
	// record's INFO column to the next can be measured once and reused.
	// This assumption does not hold for general multi-sample VCFs; see
	// DESIGN.md, Open Question 3.
	delimsToEOL, err := cur.SkipPastAndCount('\n')
	if err != nil {
		return c, err
	}
	stride := int64(2 * delimsToEOL)

	for cur.KeepReading() {
		if err := c.addRecord(cur); err != nil {
			return c, err
		}
		if _, err := cur.Seek(stride); err != nil {
			return c, err
		}
		if _, err := cur.SkipPast(1, '\n'); err != nil {
			return c, err
		}
	}
	return c, nil
}

// addRecord scans one record's INFO column for AC and AN, folding the
// result into c only if the record completes before the slice runs out.
// A record truncated mid-INFO at end-of-slice contributes nothing.
func (c *Counter) addRecord(cur *bgzf.Cursor) error {
	if _, err := cur.SkipPast(infoColumn, '\t'); err != nil {
		return err
	}

	var numVariants, numCalls uint64
	var foundAC, foundAN bool
	for !(foundAC && foundAN) {
		lastDelim, token, err := cur.ReadUntilAny(';', '\t')
		if err != nil {
			return err
		}
		if lastDelim == 0 {
			vlog.Infof("vcf: end-of-slice inside INFO column, dropping partial record")
			return nil
		}

		if len(token) >= 4 {
			switch {
			case bytes.HasPrefix(token, acPrefix):
				foundAC = true
				numVariants += 1 + uint64(bytes.Count(token[3:], comma))
			case bytes.HasPrefix(token, anPrefix):
				foundAN = true
				n, err := strconv.ParseUint(string(token[3:]), 10, 64)
				if err != nil {
					vlog.Errorf("vcf: malformed AN field %q: %v", token, err)
				} else {
					numCalls += n
				}
			default:
				vlog.Infof("vcf: unrecognised INFO field %q", token)
			}
		} else {
			vlog.Infof("vcf: short unrecognised INFO field %q", token)
		}

		if lastDelim == '\t' && !(foundAC && foundAN) {
			vlog.Infof("vcf: INFO column ended before both AC and AN were found (AC=%v AN=%v)", foundAC, foundAN)
			break
		}
	}

	c.NumVariants += numVariants
	c.NumCalls += numCalls
	c.RecordsRead++
	return nil
}
