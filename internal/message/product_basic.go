package message

import (
	"taifexflow/internal/codec"
)

// productBasicBodyLen is the fixed body layout size of a product basic
// data message.
const productBasicBodyLen = 32

// ProductBasic is the decoded product basic data record. Price fields
// are scaled integers; DecimalLocator positions the decimal point.
type ProductBasic struct {
	ProdIDShort          string // 10 chars, space padded
	ReferencePrice       int64
	ProdKind             byte
	DecimalLocator       uint8
	StrikeDecimalLocator uint8
	BeginDate            string // YYYYMMDD
	EndDate              string // YYYYMMDD
	DeliveryDate         string // YYYYMMDD
	FlowGroup            uint8
	DynamicBanding       byte // 'Y' or 'N'
}

// ParseProductBasic decodes a product basic data body. Bodies longer
// than the fixed layout keep their trailing bytes unparsed.
func ParseProductBasic(body []byte) (ProductBasic, error) {
	var m ProductBasic
	if len(body) < productBasicBodyLen {
		return m, parseErr("body_length", errShort(len(body), productBasicBodyLen))
	}

	off := 0
	m.ProdIDShort = string(body[off : off+10])
	off += 10

	refPrice, err := codec.DecodeBCDUint(body[off : off+5])
	if err != nil {
		return m, parseErr("reference_price", err)
	}
	m.ReferencePrice = int64(refPrice)
	off += 5

	m.ProdKind = body[off]
	off++

	decLoc, err := codec.DecodeBCDUint(body[off : off+1])
	if err != nil {
		return m, parseErr("decimal_locator", err)
	}
	m.DecimalLocator = uint8(decLoc % 10)
	off++

	strikeLoc, err := codec.DecodeBCDUint(body[off : off+1])
	if err != nil {
		return m, parseErr("strike_decimal_locator", err)
	}
	m.StrikeDecimalLocator = uint8(strikeLoc % 10)
	off++

	if m.BeginDate, err = codec.DecodeBCD(body[off:off+4], 8); err != nil {
		return m, parseErr("begin_date", err)
	}
	off += 4

	if m.EndDate, err = codec.DecodeBCD(body[off:off+4], 8); err != nil {
		return m, parseErr("end_date", err)
	}
	off += 4

	if m.DeliveryDate, err = codec.DecodeBCD(body[off:off+4], 8); err != nil {
		return m, parseErr("delivery_date", err)
	}
	off += 4

	flowGroup, err := codec.DecodeBCDUint(body[off : off+1])
	if err != nil {
		return m, parseErr("flow_group", err)
	}
	m.FlowGroup = uint8(flowGroup)
	off++

	m.DynamicBanding = body[off]
	return m, nil
}
