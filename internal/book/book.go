// Package book maintains per-product limit order books driven by
// snapshot and incremental update messages.
package book

import (
	"github.com/google/btree"

	"taifexflow/internal/message"
)

// Market-order prices from the call-auction path are carried as the
// maximum 9-digit magnitude and must round-trip untouched.
const (
	MarketBuyPrice  int64 = 999999999
	MarketSellPrice int64 = -999999999
)

// Level is one price level: a signed scaled price and its resting size.
type Level struct {
	Price int64
	Size  uint64
}

// Book is a single product's limit order book. Bids iterate from the
// highest price, asks from the lowest. Not safe for concurrent use; the
// pipeline thread owns all books.
type Book struct {
	productID      string
	decimalLocator uint8
	lastSeq        uint64

	bids *btree.BTreeG[Level]
	asks *btree.BTreeG[Level]

	derivedBid *Level
	derivedAsk *Level
}

const btreeDegree = 8

// New creates an empty book. The decimal locator comes from the product
// basic record of the same short id and is kept for rendering only; all
// stored prices stay scaled.
func New(productID string, decimalLocator uint8) *Book {
	return &Book{
		productID:      productID,
		decimalLocator: decimalLocator,
		bids:           btree.NewG(btreeDegree, func(a, b Level) bool { return a.Price > b.Price }),
		asks:           btree.NewG(btreeDegree, func(a, b Level) bool { return a.Price < b.Price }),
	}
}

func (b *Book) ProductID() string      { return b.productID }
func (b *Book) DecimalLocator() uint8  { return b.decimalLocator }
func (b *Book) LastSeq() uint64        { return b.lastSeq }

// signedPrice merges the wire sign character into the price magnitude.
func signedPrice(sign byte, magnitude int64) int64 {
	if sign == message.SignNegative && magnitude > 0 {
		return -magnitude
	}
	return magnitude
}

// Reset clears both sides, both derived slots and the applied sequence.
// Product identity and decimal locator survive.
func (b *Book) Reset() {
	b.bids.Clear(false)
	b.asks.Clear(false)
	b.derivedBid = nil
	b.derivedAsk = nil
	b.lastSeq = 0
}

// ApplySnapshot rebuilds the book from a full snapshot. Derived entries
// are honored only on regular snapshots; call-auction snapshots
// (calculated flag '1') carry none by protocol and any present are
// ignored.
func (b *Book) ApplySnapshot(snap message.OrderBookSnapshot) {
	b.Reset()
	b.lastSeq = snap.Seq

	for _, e := range snap.Entries {
		price := signedPrice(e.Sign, e.PriceMagnitude)
		switch e.EntryType {
		case message.EntryBuy:
			if e.Size > 0 {
				b.bids.ReplaceOrInsert(Level{Price: price, Size: e.Size})
			}
		case message.EntrySell:
			if e.Size > 0 {
				b.asks.ReplaceOrInsert(Level{Price: price, Size: e.Size})
			}
		case message.EntryDerivedBuy:
			if snap.CalculatedFlag == message.CalculatedNo {
				b.derivedBid = overlayLevel(price, e.Size)
			}
		case message.EntryDerivedSell:
			if snap.CalculatedFlag == message.CalculatedNo {
				b.derivedAsk = overlayLevel(price, e.Size)
			}
		}
	}
}

// ApplyUpdate applies an incremental update. Updates at or below the
// current applied sequence leave the book untouched and return false.
// Entries take effect strictly in order: each entry sees the book as
// left by the previous one.
func (b *Book) ApplyUpdate(upd message.OrderBookUpdate) bool {
	if upd.Seq <= b.lastSeq {
		return false
	}
	b.lastSeq = upd.Seq

	for _, e := range upd.Entries {
		price := signedPrice(e.Sign, e.PriceMagnitude)
		switch e.EntryType {
		case message.EntryBuy:
			b.applySide(b.bids, e.Action, price, e.Size)
		case message.EntrySell:
			b.applySide(b.asks, e.Action, price, e.Size)
		case message.EntryDerivedBuy:
			if e.Action == message.ActionOverlay {
				b.derivedBid = overlayLevel(price, e.Size)
			}
		case message.EntryDerivedSell:
			if e.Action == message.ActionOverlay {
				b.derivedAsk = overlayLevel(price, e.Size)
			}
		}
	}
	return true
}

// applySide mutates one regular side. Change on an absent price with a
// positive size degrades to an insert so books recover from missed
// levels; Overlay never touches regular sides.
func (b *Book) applySide(side *btree.BTreeG[Level], action byte, price int64, size uint64) {
	switch action {
	case message.ActionNew:
		if size > 0 {
			side.ReplaceOrInsert(Level{Price: price, Size: size})
		}
	case message.ActionChange:
		if _, ok := side.Get(Level{Price: price}); ok {
			if size > 0 {
				side.ReplaceOrInsert(Level{Price: price, Size: size})
			} else {
				side.Delete(Level{Price: price})
			}
		} else if size > 0 {
			side.ReplaceOrInsert(Level{Price: price, Size: size})
		}
	case message.ActionDelete:
		side.Delete(Level{Price: price})
	}
}

// overlayLevel is the shared derived-slot rule: a zero price with a zero
// size clears the slot, anything else replaces it.
func overlayLevel(price int64, size uint64) *Level {
	if size == 0 && price == 0 {
		return nil
	}
	return &Level{Price: price, Size: size}
}

// TopBids returns up to n levels from the highest price down.
func (b *Book) TopBids(n int) []Level {
	return topLevels(b.bids, n)
}

// TopAsks returns up to n levels from the lowest price up.
func (b *Book) TopAsks(n int) []Level {
	return topLevels(b.asks, n)
}

func topLevels(side *btree.BTreeG[Level], n int) []Level {
	if n <= 0 {
		return nil
	}
	out := make([]Level, 0, n)
	side.Ascend(func(l Level) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}

// DerivedBid returns the derived-bid slot if populated.
func (b *Book) DerivedBid() (Level, bool) {
	if b.derivedBid == nil {
		return Level{}, false
	}
	return *b.derivedBid, true
}

// DerivedAsk returns the derived-ask slot if populated.
func (b *Book) DerivedAsk() (Level, bool) {
	if b.derivedAsk == nil {
		return Level{}, false
	}
	return *b.derivedAsk, true
}

// Depth reports the number of resting levels on each side.
func (b *Book) Depth() (bids, asks int) {
	return b.bids.Len(), b.asks.Len()
}
