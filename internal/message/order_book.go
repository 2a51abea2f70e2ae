package message

import (
	"fmt"

	"taifexflow/internal/codec"
)

const (
	snapshotPrefixLen = 27
	snapshotEntryLen  = 12
	updatePrefixLen   = 26
	updateEntryLen    = 13
)

// Calculated-flag values on snapshots.
const (
	CalculatedNo  byte = '0'
	CalculatedYes byte = '1'
)

// OrderBookSnapshot is a decoded full-book snapshot body.
type OrderBookSnapshot struct {
	ProdID         string // 20 chars, space padded
	Seq            uint64 // product message sequence
	CalculatedFlag byte
	Entries        []BookEntry
}

// OrderBookUpdate is a decoded incremental book update body.
type OrderBookUpdate struct {
	ProdID  string
	Seq     uint64
	Entries []BookEntry
}

func errShort(have, want int) error {
	return fmt.Errorf("%d bytes, need %d", have, want)
}

// ParseOrderBookSnapshot decodes a snapshot body: 27-byte prefix then
// entryCount 12-byte entries.
func ParseOrderBookSnapshot(body []byte) (OrderBookSnapshot, error) {
	var m OrderBookSnapshot
	if len(body) < snapshotPrefixLen {
		return m, parseErr("body_length", errShort(len(body), snapshotPrefixLen))
	}

	m.ProdID = string(body[:20])

	seq, err := codec.DecodeBCDUint(body[20:25])
	if err != nil {
		return m, parseErr("prod_msg_seq", err)
	}
	m.Seq = seq

	m.CalculatedFlag = body[25]

	count, err := codec.DecodeBCDUint(body[26:27])
	if err != nil {
		return m, parseErr("entry_count", err)
	}
	if len(body) < snapshotPrefixLen+int(count)*snapshotEntryLen {
		return m, parseErr("entry_count", fmt.Errorf("%d entries exceed %d body bytes", count, len(body)))
	}

	m.Entries = make([]BookEntry, 0, count)
	off := snapshotPrefixLen
	for i := uint64(0); i < count; i++ {
		e, n, err := parseEntry(body[off:], false)
		if err != nil {
			return m, err
		}
		m.Entries = append(m.Entries, e)
		off += n
	}
	return m, nil
}

// ParseOrderBookUpdate decodes an update body: 26-byte prefix then
// entryCount 13-byte entries.
func ParseOrderBookUpdate(body []byte) (OrderBookUpdate, error) {
	var m OrderBookUpdate
	if len(body) < updatePrefixLen {
		return m, parseErr("body_length", errShort(len(body), updatePrefixLen))
	}

	m.ProdID = string(body[:20])

	seq, err := codec.DecodeBCDUint(body[20:25])
	if err != nil {
		return m, parseErr("prod_msg_seq", err)
	}
	m.Seq = seq

	count, err := codec.DecodeBCDUint(body[25:26])
	if err != nil {
		return m, parseErr("entry_count", err)
	}
	if len(body) < updatePrefixLen+int(count)*updateEntryLen {
		return m, parseErr("entry_count", fmt.Errorf("%d entries exceed %d body bytes", count, len(body)))
	}

	m.Entries = make([]BookEntry, 0, count)
	off := updatePrefixLen
	for i := uint64(0); i < count; i++ {
		e, n, err := parseEntry(body[off:], true)
		if err != nil {
			return m, err
		}
		m.Entries = append(m.Entries, e)
		off += n
	}
	return m, nil
}

// parseEntry decodes one repeating entry and returns its wire length.
// Update entries lead with the action byte; snapshot entries have none.
func parseEntry(b []byte, withAction bool) (BookEntry, int, error) {
	var e BookEntry
	off := 0
	if withAction {
		e.Action = b[off]
		off++
	}
	e.EntryType = b[off]
	off++
	e.Sign = b[off]
	off++

	px, err := codec.DecodeBCDUint(b[off : off+5])
	if err != nil {
		return e, 0, parseErr("md_entry_px", err)
	}
	e.PriceMagnitude = int64(px)
	off += 5

	size, err := codec.DecodeBCDUint(b[off : off+4])
	if err != nil {
		return e, 0, parseErr("md_entry_size", err)
	}
	e.Size = size
	off += 4

	level, err := codec.DecodeBCDUint(b[off : off+1])
	if err != nil {
		return e, 0, parseErr("md_price_level", err)
	}
	e.Level = uint8(level)
	off++

	return e, off, nil
}

// ParseHeartbeat validates a heartbeat or sequence-reset body. The body
// is empty on most feeds; some captures count the checksum and
// terminator as body, so exactly 3 bytes is also accepted.
func ParseHeartbeat(body []byte) error {
	if len(body) != 0 && len(body) != 3 {
		return parseErr("body_length", fmt.Errorf("%d bytes, want 0 or 3", len(body)))
	}
	return nil
}
