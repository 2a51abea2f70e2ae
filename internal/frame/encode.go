package frame

import (
	"fmt"

	"taifexflow/internal/codec"
)

// Encode assembles a complete frame around the given body: header with
// the supplied identity fields, XOR checksum and CR LF terminator. Used
// by tests to build input frames; the live pipeline and the replay
// player only ever consume frames.
func Encode(tc, mk byte, infoTime string, channelID uint16, channelSeq uint64, body []byte) ([]byte, error) {
	if len(infoTime) != 12 {
		return nil, fmt.Errorf("information time must be 12 digits, got %d", len(infoTime))
	}
	total := HeaderSize + len(body) + TrailerSize
	buf := make([]byte, 0, total)
	buf = append(buf, Esc, tc, mk)

	it, err := codec.EncodeBCD(infoTime)
	if err != nil {
		return nil, fmt.Errorf("INFORMATION-TIME: %w", err)
	}
	buf = append(buf, it...)

	ci, err := codec.EncodeBCD(fmt.Sprintf("%04d", channelID))
	if err != nil {
		return nil, fmt.Errorf("CHANNEL-ID: %w", err)
	}
	buf = append(buf, ci...)

	cs, err := codec.EncodeBCD(fmt.Sprintf("%010d", channelSeq))
	if err != nil {
		return nil, fmt.Errorf("CHANNEL-SEQ: %w", err)
	}
	buf = append(buf, cs...)

	buf = append(buf, 0x01) // version 01

	bl, err := codec.EncodeBCD(fmt.Sprintf("%04d", len(body)))
	if err != nil {
		return nil, fmt.Errorf("BODY-LENGTH: %w", err)
	}
	buf = append(buf, bl...)

	buf = append(buf, body...)
	buf = append(buf, codec.XorChecksum(buf[1:]))
	buf = append(buf, 0x0D, 0x0A)
	return buf, nil
}
