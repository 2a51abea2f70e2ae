package retransmission

import (
	"taifexflow/internal/codec"
	"taifexflow/internal/frame"
)

// segmentKind distinguishes the two message families interleaved on the
// recovery TCP stream.
type segmentKind int

const (
	segmentIncomplete segmentKind = iota
	segmentMarketFrame
	segmentProtocol
)

// reassembler frames the recovery TCP byte stream. Market-data frames
// (leading 0x1B) and recovery-protocol messages (leading big-endian
// msg_size) are interleaved; boundaries are found per family.
type reassembler struct {
	buf []byte
}

func (r *reassembler) feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// pending reports buffered bytes not yet consumed.
func (r *reassembler) pending() int { return len(r.buf) }

// next extracts the leading complete segment, if any. The returned slice
// references the internal buffer and must be consumed before the next
// feed. skipped reports bytes discarded to restore synchronization.
func (r *reassembler) next() (kind segmentKind, seg []byte, skipped int) {
	if len(r.buf) == 0 {
		return segmentIncomplete, nil, 0
	}

	if r.buf[0] == frame.Esc {
		if len(r.buf) < frame.HeaderSize {
			return segmentIncomplete, nil, 0
		}
		h, err := frame.ParseHeader(r.buf)
		if err != nil {
			return segmentIncomplete, nil, 0
		}
		bodyLen, err := h.BodyLength()
		if err != nil {
			// Unparseable length leaves no boundary; drop the escape byte
			// and rescan.
			r.buf = r.buf[1:]
			return segmentIncomplete, nil, 1
		}
		total := frame.HeaderSize + int(bodyLen) + frame.TrailerSize
		if len(r.buf) < total {
			return segmentIncomplete, nil, 0
		}
		seg = r.buf[:total]
		r.buf = r.buf[total:]
		return segmentMarketFrame, seg, 0
	}

	if len(r.buf) < 2 {
		return segmentIncomplete, nil, 0
	}
	msgSize := codec.Uint16(r.buf)
	total := 2 + int(msgSize) + footerSize
	if int(msgSize) < sizedLen {
		// No valid protocol message can declare this; clear the buffer to
		// resynchronize on the next read.
		skipped = len(r.buf)
		r.buf = nil
		return segmentIncomplete, nil, skipped
	}
	if len(r.buf) < total {
		return segmentIncomplete, nil, 0
	}
	seg = r.buf[:total]
	r.buf = r.buf[total:]
	return segmentProtocol, seg, 0
}

// reset drops all buffered bytes, typically on reconnect.
func (r *reassembler) reset() {
	r.buf = nil
}
