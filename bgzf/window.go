package bgzf

import (
	"context"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/genomebridge/vcf-slice-summariser/storage"
)

const (
	// MaxWindowSize is the largest byte range a single window downloads in
	// one ranged GET.
	MaxWindowSize = 100_000_000

	// MaxConcurrentWindows is the largest number of windows, and therefore
	// Downloaders, alive at once.
	MaxConcurrentWindows = 4
)

// Downloader starts a concurrent ranged fetch of the archive into dest,
// returning a handle whose Join blocks for completion.
type Downloader interface {
	StartRange(ctx context.Context, firstByte, numBytes int64, dest []byte) *storage.RangeDownload
}

type windowState int

const (
	idle windowState = iota
	inFlight
	ready
	consumed
)

// window is one fixed-size physical slot of the rotating buffer. Across the
// life of a slice read, a slot is reused to hold a sequence of logical
// windows, each covering the next unfetched byte range of the slice.
type window struct {
	bufferOffset int64
	length       int64
	dl           *storage.RangeDownload
	state        windowState
}

// windowScheduler owns the rotating buffer backing a slice read. It
// partitions the slice's compressed byte range into windows of at most
// MaxWindowSize bytes, keeps at most MaxConcurrentWindows of them resident
// in the buffer at once, and rotates the buffer as the block walker
// consumes each window in turn.
type windowScheduler struct {
	ctx context.Context
	dl  Downloader

	buf []byte

	startCompressed int64 // absolute compressed offset of byte 0 of the slice
	totalBytes      int64 // bytes to fetch: Headroom + (endCompressed-startCompressed)
	requestedBytes  int64

	maxWindowBytes int64

	slots       []*window
	slotIndex   int
	windowStart int64 // arena offset of the start of the current physical window

	// degraded is set if any Downloader reported a short or failed read.
	// The slice result continues to be computed, per spec, but the caller
	// can use this to flag the result as suspect.
	degraded bool
}

// newWindowScheduler sizes and allocates the rotating buffer for a slice
// spanning totalCompressedBytes bytes (Headroom-inclusive) starting at
// startCompressed, and kicks off the initial set of downloads.
func newWindowScheduler(ctx context.Context, dl Downloader, startCompressed, totalCompressedBytes int64, maxWindowBytes int64, maxWindows int) (*windowScheduler, error) {
	if maxWindowBytes <= 0 {
		maxWindowBytes = MaxWindowSize
	}
	if maxWindows <= 0 {
		maxWindows = MaxConcurrentWindows
	}

	numWindows := (totalCompressedBytes + maxWindowBytes - 1) / maxWindowBytes
	if numWindows < 1 {
		numWindows = 1
	}
	nSlots := int(numWindows)
	if nSlots > maxWindows {
		nSlots = maxWindows
	}

	bufLen := totalCompressedBytes
	if maxBuf := int64(maxWindows) * maxWindowBytes; bufLen > maxBuf {
		bufLen = maxBuf
	}
	bufLen += Headroom

	ws := &windowScheduler{
		ctx:             ctx,
		dl:              dl,
		buf:             make([]byte, bufLen),
		startCompressed: startCompressed,
		totalBytes:      totalCompressedBytes,
		maxWindowBytes:  maxWindowBytes,
	}

	for k := 0; k < nSlots; k++ {
		slot := &window{bufferOffset: Headroom + int64(k)*maxWindowBytes, state: idle}
		ws.slots = append(ws.slots, slot)
		ws.startNext(slot)
	}
	vlog.Infof("bgzf: downloading %d bytes using %d windows", totalCompressedBytes, nSlots)

	ws.windowStart = Headroom
	ws.slotIndex = 0
	if err := ws.join(ws.slots[0]); err != nil {
		return nil, err
	}
	return ws, nil
}

// bytesToRequest returns the size of the next unfetched chunk of the slice.
func (ws *windowScheduler) bytesToRequest() int64 {
	remaining := ws.totalBytes - ws.requestedBytes
	if remaining > ws.maxWindowBytes {
		return ws.maxWindowBytes
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// startNext launches the next unfetched window's download into slot,
// reusing slot's fixed buffer region. It is a no-op if every byte of the
// slice has already been requested.
func (ws *windowScheduler) startNext(slot *window) {
	n := ws.bytesToRequest()
	if n <= 0 {
		slot.length = 0
		slot.dl = nil
		slot.state = consumed
		return
	}
	dest := ws.buf[slot.bufferOffset : slot.bufferOffset+n]
	slot.dl = ws.dl.StartRange(ws.ctx, ws.startCompressed+ws.requestedBytes, n, dest)
	slot.length = n
	slot.state = inFlight
	ws.requestedBytes += n
}

// join blocks for slot's download to finish. A failed or short download is
// logged and the scheduler is marked degraded rather than aborting, per the
// spec's "download failures are logged and swallowed" policy.
func (ws *windowScheduler) join(slot *window) error {
	if slot.state == consumed {
		return nil
	}
	n, err := slot.dl.Join()
	if err != nil {
		vlog.Errorf("bgzf: window download failed: %v", err)
		ws.degraded = true
	} else if n != slot.length {
		vlog.Errorf("bgzf: window download short: got %d want %d bytes", n, slot.length)
		ws.degraded = true
	}
	slot.state = ready
	return nil
}

// rotate is called by the block walker once it has advanced past blockStart
// and needs more bytes to be resident in the buffer. It returns the
// (possibly relocated) offset the walker should treat as the new block's
// start.
func (ws *windowScheduler) rotate(blockStart int64) (int64, error) {
	cur := ws.slots[ws.slotIndex]
	nextWindow := ws.windowStart + cur.length
	if nextWindow >= blockStart+Headroom {
		// Current physical window still covers enough lookahead; no rotation.
		return blockStart, nil
	}

	if ws.slotIndex+1 == len(ws.slots) {
		// Final physical window: copy the straddling tail back to the head
		// of the arena, then restart the cycle from slot 0. The slot we just
		// finished (cur) is the one now free, so it gets the next unfetched
		// window, the same way the nextWindow<blockStart branch below reuses
		// the slot it just finished rather than slot 0.
		tailLen := nextWindow - blockStart
		if tailLen < 0 || blockStart+tailLen > int64(len(ws.buf)) {
			return 0, errors.Errorf("bgzf: rotate: invalid straddle length %d", tailLen)
		}
		copy(ws.buf[Headroom-tailLen:Headroom], ws.buf[blockStart:blockStart+tailLen])
		newBlockStart := Headroom - tailLen

		ws.startNext(cur)
		ws.slotIndex = 0
		ws.windowStart = Headroom
		if err := ws.join(ws.slots[0]); err != nil {
			return newBlockStart, err
		}
		return newBlockStart, nil
	}

	if nextWindow < blockStart {
		// We're clear of the current window: launch the next range into the
		// slot we just finished consuming, then re-check from the next slot,
		// which may itself be the final one and need to wrap.
		ws.startNext(cur)
		ws.windowStart = nextWindow
		ws.slotIndex++
		if next := ws.slots[ws.slotIndex]; next.state == inFlight {
			if err := ws.join(next); err != nil {
				return blockStart, err
			}
		}
		return ws.rotate(blockStart)
	}

	// The next window is already launched; just join it before proceeding.
	if err := ws.join(ws.slots[ws.slotIndex+1]); err != nil {
		return blockStart, err
	}
	return blockStart, nil
}
