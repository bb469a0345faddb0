//go:build vcfslice_debug

package bgzf

import (
	"blainsmith.com/go/seahash"
	"v.io/x/lib/vlog"
)

// debugChecksumOverflow logs a checksum of a straddling token's assembled
// bytes. Only compiled into vcfslice_debug builds, for bisecting overflow
// stitching bugs without paying a hash on every token in production.
func debugChecksumOverflow(buf []byte) {
	vlog.Infof("bgzf: overflow token checksum=%x len=%d", seahash.Sum64(buf), len(buf))
}
