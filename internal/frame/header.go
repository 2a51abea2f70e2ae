// Package frame implements the market-data framing layer: the 19-byte
// common header, the (transmission-code, message-kind) identification
// table and whole-frame validation.
package frame

import (
	"errors"
	"fmt"

	"taifexflow/internal/codec"
)

const (
	// Esc opens every market-data frame.
	Esc byte = 0x1B
	// HeaderSize is the fixed common-header length.
	HeaderSize = 19
	// TrailerSize covers the checksum byte plus the two terminator bytes.
	TrailerSize = 3
	// MinFrameSize is the shortest well-formed frame (empty body).
	MinFrameSize = HeaderSize + TrailerSize
)

var (
	ErrTooShort        = errors.New("frame too short")
	ErrMalformedHeader = errors.New("malformed header")
)

// Header is the decoded common header. BCD fields keep their raw bytes;
// accessors convert on demand and surface codec.ErrInvalidBCD.
type Header struct {
	EscCode          byte
	TransmissionCode byte
	MessageKind      byte

	infoTimeBCD   [6]byte
	channelIDBCD  [2]byte
	channelSeqBCD [5]byte
	versionBCD    byte
	bodyLengthBCD [2]byte
}

// ParseHeader decodes the fixed 19-byte prefix of a frame.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes, header needs %d", ErrTooShort, len(buf), HeaderSize)
	}
	h.EscCode = buf[0]
	h.TransmissionCode = buf[1]
	h.MessageKind = buf[2]
	copy(h.infoTimeBCD[:], buf[3:9])
	copy(h.channelIDBCD[:], buf[9:11])
	copy(h.channelSeqBCD[:], buf[11:16])
	h.versionBCD = buf[16]
	copy(h.bodyLengthBCD[:], buf[17:19])
	return h, nil
}

// InformationTime returns the 12-digit HHMMSSmmmuuu string.
func (h *Header) InformationTime() (string, error) {
	return codec.DecodeBCD(h.infoTimeBCD[:], 12)
}

// ChannelID returns the 4-digit channel identifier.
func (h *Header) ChannelID() (uint16, error) {
	v, err := codec.DecodeBCDUint(h.channelIDBCD[:])
	if err != nil {
		return 0, fmt.Errorf("CHANNEL-ID: %w", err)
	}
	return uint16(v), nil
}

// ChannelSeq returns the 10-digit channel sequence number.
func (h *Header) ChannelSeq() (uint64, error) {
	v, err := codec.DecodeBCDUint(h.channelSeqBCD[:])
	if err != nil {
		return 0, fmt.Errorf("CHANNEL-SEQ: %w", err)
	}
	return v, nil
}

// Version returns the 2-digit header version.
func (h *Header) Version() (uint8, error) {
	v, err := codec.DecodeBCDUint([]byte{h.versionBCD})
	if err != nil {
		return 0, fmt.Errorf("VERSION-NO: %w", err)
	}
	return uint8(v), nil
}

// BodyLength returns the 4-digit declared body length.
func (h *Header) BodyLength() (uint16, error) {
	v, err := codec.DecodeBCDUint(h.bodyLengthBCD[:])
	if err != nil {
		return 0, fmt.Errorf("BODY-LENGTH: %w", err)
	}
	return uint16(v), nil
}

// MessageID identifies the logical message family of this header.
func (h *Header) MessageID() MessageID {
	return Identify(h.TransmissionCode, h.MessageKind)
}
