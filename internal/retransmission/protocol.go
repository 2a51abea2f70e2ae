// Package retransmission implements the TCP recovery protocol: message
// codec, stream reassembly and the client session that refetches
// market-data frames lost in transport.
package retransmission

import (
	"errors"
	"fmt"
	"time"

	"taifexflow/internal/codec"
)

// Message type codes.
const (
	TypeErrorNotification uint16 = 10
	TypeLoginRequest      uint16 = 20
	TypeLoginResponse     uint16 = 30
	TypeReady             uint16 = 50
	TypeDataRequest       uint16 = 101
	TypeDataResponse      uint16 = 102
	TypeServerHeartbeat   uint16 = 104
	TypeClientHeartbeat   uint16 = 105
)

const (
	headerSize = 16 // msg_size(2) + msg_type(2) + msg_seq(4) + time(8)
	footerSize = 1  // mod-256 sum
	// sizedLen is the part of the header counted by msg_size.
	sizedLen = headerSize - 2
)

var (
	ErrProtocol    = errors.New("recovery protocol error")
	ErrBadChecksum = errors.New("recovery checksum mismatch")
)

// Header is the fixed 16-byte recovery-message header.
type Header struct {
	MsgSize uint16
	MsgType uint16
	MsgSeq  uint32
	EpochS  uint32
	Nanos   uint32
}

// encode assembles a complete recovery message around payload: header,
// payload, sum footer.
func encode(msgType uint16, seq uint32, now time.Time, payload []byte) []byte {
	msgSize := uint16(sizedLen + len(payload))
	buf := make([]byte, headerSize+len(payload)+footerSize)
	codec.PutUint16(buf[0:], msgSize)
	codec.PutUint16(buf[2:], msgType)
	codec.PutUint32(buf[4:], seq)
	codec.PutUint32(buf[8:], uint32(now.Unix()))
	codec.PutUint32(buf[12:], uint32(now.Nanosecond()))
	copy(buf[headerSize:], payload)
	buf[len(buf)-1] = codec.SumChecksum(buf[:len(buf)-1])
	return buf
}

// parseHeader decodes the fixed header prefix.
func parseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < headerSize {
		return h, fmt.Errorf("%w: %d bytes, header needs %d", ErrProtocol, len(b), headerSize)
	}
	h.MsgSize = codec.Uint16(b[0:])
	h.MsgType = codec.Uint16(b[2:])
	h.MsgSeq = codec.Uint32(b[4:])
	h.EpochS = codec.Uint32(b[8:])
	h.Nanos = codec.Uint32(b[12:])
	if int(h.MsgSize) < sizedLen {
		return h, fmt.Errorf("%w: msg_size %d below header remainder", ErrProtocol, h.MsgSize)
	}
	return h, nil
}

// verify checks the sum footer over one complete message.
func verify(full []byte) error {
	if got, want := codec.SumChecksum(full[:len(full)-1]), full[len(full)-1]; got != want {
		return fmt.Errorf("%w: computed 0x%02X, carried 0x%02X", ErrBadChecksum, got, want)
	}
	return nil
}

// payloadOf returns the payload bytes of one complete verified message.
func payloadOf(full []byte) []byte {
	return full[headerSize : len(full)-footerSize]
}

// CheckCode derives the login check code from the multiplication
// operator the client sends in its login request and the numeric session
// password.
func CheckCode(multiplicationOperator uint16, password uint64) uint8 {
	return uint8(uint64(multiplicationOperator) * password / 100 % 100)
}

// LoginRequest is the type-20 payload.
type LoginRequest struct {
	MultiplicationOperator uint16
	CheckCode              uint8
	SessionID              uint16
}

func (m LoginRequest) marshal() []byte {
	b := make([]byte, 5)
	codec.PutUint16(b[0:], m.MultiplicationOperator)
	b[2] = m.CheckCode
	codec.PutUint16(b[3:], m.SessionID)
	return b
}

// LoginResponse is the type-30 payload; one arrives per subscribed
// channel.
type LoginResponse struct {
	ChannelID uint16
}

func parseLoginResponse(p []byte) (LoginResponse, error) {
	if len(p) < 2 {
		return LoginResponse{}, fmt.Errorf("%w: login response payload %d bytes", ErrProtocol, len(p))
	}
	return LoginResponse{ChannelID: codec.Uint16(p)}, nil
}

// DataRequest is the type-101 payload. RecoverNum at or below 1 recovers
// exactly the message at BeginSeq.
type DataRequest struct {
	ChannelID  uint16
	BeginSeq   uint32
	RecoverNum uint16
}

func (m DataRequest) marshal() []byte {
	b := make([]byte, 8)
	codec.PutUint16(b[0:], m.ChannelID)
	codec.PutUint32(b[2:], m.BeginSeq)
	codec.PutUint16(b[6:], m.RecoverNum)
	return b
}

// DataResponse is the type-102 fixed payload. Status 0 means success.
// Any payload bytes past the fixed part are market-data frames embedded
// in the response; most servers stream them after the message instead.
type DataResponse struct {
	ChannelID  uint16
	Status     uint8
	BeginSeq   uint32
	RecoverNum uint16
	Embedded   []byte
}

func parseDataResponse(p []byte) (DataResponse, error) {
	const fixed = 9
	if len(p) < fixed {
		return DataResponse{}, fmt.Errorf("%w: data response payload %d bytes", ErrProtocol, len(p))
	}
	return DataResponse{
		ChannelID:  codec.Uint16(p[0:]),
		Status:     p[2],
		BeginSeq:   codec.Uint32(p[3:]),
		RecoverNum: codec.Uint16(p[7:]),
		Embedded:   p[fixed:],
	}, nil
}

// ErrorNotification is the type-10 payload; the server closes the
// connection after sending it.
type ErrorNotification struct {
	Status uint8
}

func parseErrorNotification(p []byte) (ErrorNotification, error) {
	if len(p) < 1 {
		return ErrorNotification{}, fmt.Errorf("%w: error notification payload empty", ErrProtocol)
	}
	return ErrorNotification{Status: p[0]}, nil
}
